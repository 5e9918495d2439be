package tui

// Async message types for Bubble Tea commands.

type localLoadedMsg struct {
	rows []row
	err  error
}

type bodyFetchedMsg struct {
	key  string
	body string
	err  error
}

type openedMsg struct {
	err error
}

// statusMsg clears the status line unless a newer status replaced it.
type statusMsg struct {
	seq int
}
