package gmail

import (
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
)

// ErrNotHTTP is returned for URLs OpenBrowser refuses to hand to the OS.
var ErrNotHTTP = errors.New("refusing to open non-HTTP URL")

// ThreadURL links to a thread in the Gmail web client.
func ThreadURL(threadID string) string {
	return "https://mail.google.com/mail/u/0/#all/" + url.PathEscape(threadID)
}

// SenderURL links to a web client search for mail from email.
func SenderURL(email string) string {
	return "https://mail.google.com/mail/u/0/#search/" + url.PathEscape("from:"+email)
}

// OpenBrowser opens rawURL in the default browser.
func OpenBrowser(rawURL string) error {
	if err := checkHTTP(rawURL); err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		// rundll32 avoids cmd /c start and its shell parsing.
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	return cmd.Start()
}

func checkHTTP(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotHTTP, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrNotHTTP, u.Scheme)
	}
	return nil
}
