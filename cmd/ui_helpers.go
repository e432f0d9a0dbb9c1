package cmd

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"vkbacademy/cli/internal/session"
)

// startInlineSpinner draws frames followed by text on a single line of w
// until the returned stop function is called, which also erases the line.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line)
				i++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
		})
	}
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

// displayName picks the friendliest identifier the user has.
func displayName(u *session.User) string {
	switch {
	case u == nil:
		return ""
	case u.Name != "":
		return u.Name
	case u.Email != "":
		return u.Email
	}
	return u.ID
}

// loginGreeting returns a random greeting for the signed-in user.
func loginGreeting(u *session.User) string {
	name := displayName(u)
	if name == "" {
		return "✅ Login successful!"
	}
	greetings := []string{
		"🎉 Welcome back, %s!",
		"✨ Great to see you, %s!",
		"🚀 You're all set, %s!",
		"📚 Ready to learn, %s?",
		"🌟 Welcome aboard, %s!",
		"🎯 You're in, %s!",
	}
	return fmt.Sprintf(greetings[rand.Intn(len(greetings))], name)
}
