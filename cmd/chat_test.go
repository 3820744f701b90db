package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"botkit/pkg/config"
	"botkit/pkg/provider"
)

func TestResolvePrompt(t *testing.T) {
	tests := []struct {
		name string
		flag string
		args []string
		want string
	}{
		{name: "flag wins", flag: " from flag ", args: []string{"from", "args"}, want: "from flag"},
		{name: "args joined", args: []string{"what", "is", "up"}, want: "what is up"},
		{name: "blank args", args: []string{" ", ""}, want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			promptText = tt.flag
			defer func() { promptText = "" }()

			if got := resolvePrompt(tt.args); got != tt.want {
				t.Fatalf("resolvePrompt(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestRunChatEchoesPrompt(t *testing.T) {
	cfg := &config.Config{}
	cfg.Bot.Greeting = "Welcome aboard"
	cfg.Channels.Console.User = "ada"

	var out bytes.Buffer
	err := runChat(context.Background(), cfg, provider.Echo{}, strings.NewReader("ping\n/help\n"), &out, nil)
	if err != nil {
		t.Fatalf("runChat error: %v", err)
	}

	rendered := out.String()
	for _, fragment := range []string{"Welcome aboard", "ping", "/forget"} {
		if !strings.Contains(rendered, fragment) {
			t.Fatalf("output missing %q:\n%s", fragment, rendered)
		}
	}
}
