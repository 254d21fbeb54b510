package app

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want Command
	}{
		{nil, CommandServe},
		{[]string{}, CommandServe},
		{[]string{"serve"}, CommandServe},
		{[]string{"worker"}, CommandWorker},
		{[]string{"migrate"}, CommandMigrate},
		{[]string{"migrate", "down"}, CommandMigrate},
		{[]string{"healthcheck"}, CommandHealthcheck},
		{[]string{"token", "1"}, CommandToken},
		{[]string{"unknown"}, CommandServe},
	}

	for _, tt := range tests {
		if got := ParseCommand(tt.args); got != tt.want {
			t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}
