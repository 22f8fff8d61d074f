package simpletq

type options struct {
	name       string
	workingDir string
}

// Option is a function that configures a task during Submit.
type Option func(*options)

// TaskName sets an explicit task name. If not provided, the name is derived
// from the command (see DeriveName).
func TaskName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WorkingDir makes the task script change into dir before running the command.
func WorkingDir(dir string) Option {
	return func(o *options) {
		o.workingDir = dir
	}
}
