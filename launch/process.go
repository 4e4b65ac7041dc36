package launch

import (
	"sync"
	"time"
)

// LogEntry represents a single captured log line from the server process.
type LogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"` // "stdout" or "stderr"
	Message   string    `json:"message"`
	PID       int       `json:"pid"`
}

// LogBuffer maintains a circular buffer of recent log entries.
type LogBuffer struct {
	mu        sync.RWMutex
	entries   []LogEntry
	capacity  int
	nextID    int64
	callbacks []func(LogEntry)
}

// NewLogBuffer creates a new log buffer with the specified capacity.
func NewLogBuffer(capacity int) *LogBuffer {
	return &LogBuffer{
		entries:  make([]LogEntry, 0, capacity),
		capacity: capacity,
		nextID:   1,
	}
}

// AddEntry appends a log line, evicting the oldest entry when full.
func (lb *LogBuffer) AddEntry(source, message string, pid int) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	entry := LogEntry{
		ID:        lb.nextID,
		Timestamp: time.Now(),
		Source:    source,
		Message:   message,
		PID:       pid,
	}

	if len(lb.entries) >= lb.capacity {
		lb.entries = lb.entries[1:]
	}
	lb.entries = append(lb.entries, entry)
	lb.nextID++

	for _, callback := range lb.callbacks {
		go callback(entry) // Run in goroutine to avoid blocking
	}
}

// EntriesFromID returns all log entries with ID greater than fromID.
func (lb *LogBuffer) EntriesFromID(fromID int64) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	result := make([]LogEntry, 0)
	for _, entry := range lb.entries {
		if entry.ID > fromID {
			result = append(result, entry)
		}
	}
	return result
}

// LatestEntries returns the most recent count log entries.
func (lb *LogBuffer) LatestEntries(count int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if count <= 0 || len(lb.entries) == 0 {
		return []LogEntry{}
	}

	start := len(lb.entries) - count
	if start < 0 {
		start = 0
	}

	result := make([]LogEntry, len(lb.entries)-start)
	copy(result, lb.entries[start:])
	return result
}

// AddCallback registers a function called for every new log entry.
func (lb *LogBuffer) AddCallback(callback func(LogEntry)) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.callbacks = append(lb.callbacks, callback)
}

// LatestID returns the ID of the most recent log entry.
func (lb *LogBuffer) LatestID() int64 {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if len(lb.entries) == 0 {
		return 0
	}
	return lb.entries[len(lb.entries)-1].ID
}

// ProcessState represents the health status of the supervised server process.
type ProcessState int

const (
	// StateUnknown means the process state is not yet determined.
	StateUnknown ProcessState = iota
	// StateStarting means the process is in the process of being started.
	StateStarting
	// StateRunning means the process is running and healthy.
	StateRunning
	// StateUnhealthy means the process is running but failing health checks.
	StateUnhealthy
	// StateStopping means the process is in the process of being stopped.
	StateStopping
	// StateStopped means the process has been stopped.
	StateStopped
	// StateFailed means the process failed to start or crashed.
	StateFailed
)

// String returns a string representation of the ProcessState.
func (ps ProcessState) String() string {
	switch ps {
	case StateUnknown:
		return "Unknown"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateUnhealthy:
		return "Unhealthy"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	case StateFailed:
		return "Failed"
	default:
		return "InvalidState"
	}
}
