package simpletq

import "time"

// Task is a task record as found on disk.
type Task struct {
	// Name is the record name: the queued file name, or the directory name
	// below RUNNING, FINISHED or FAILED.
	Name string `json:"name"`
	// State is the directory the record currently occupies.
	State State `json:"state"`
	// Path is the absolute location of the record.
	Path string `json:"path"`
	// ModTime is the record modification time; for queued tasks it is the FIFO key.
	ModTime time.Time `json:"mod_time"`
}
