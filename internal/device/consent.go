package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Consent asks the user whether the microphone may be opened.
type Consent interface {
	RequestMicrophone(ctx context.Context) (bool, error)
}

type StaticConsent bool

func (c StaticConsent) RequestMicrophone(context.Context) (bool, error) {
	return bool(c), nil
}

// PromptConsent asks on a terminal and waits for a y/n answer.
type PromptConsent struct {
	In  io.Reader
	Out io.Writer
}

func (p PromptConsent) RequestMicrophone(ctx context.Context) (bool, error) {
	fmt.Fprint(p.Out, "Allow microphone access? [y/N] ")

	answer := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		if err != nil && line == "" {
			errCh <- err
			return
		}
		answer <- line
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errCh:
		if err == io.EOF {
			return false, nil
		}
		return false, fmt.Errorf("read consent answer: %w", err)
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
