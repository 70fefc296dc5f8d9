package run

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ValentinKolb/kvmod/lib/host/hosttest"
	"github.com/ValentinKolb/kvmod/lib/modules"
)

func TestExecuteScript(t *testing.T) {
	hs := hosttest.New(t)
	if err := modules.LoadAll(hs.Host, []string{"inspect"}); err != nil {
		t.Fatalf("Failed to load modules: %v", err)
	}

	script := strings.Join([]string{
		"# comment",
		`SET greeting "hello world"`,
		"GET greeting",
		"",
		"HELLO 2",
		"CALL.PROJECT DEBUG PROTOCOL true",
		"QUIT",
		"GET never",
	}, "\n")

	var out bytes.Buffer
	if err := Execute(context.Background(), hs.Host.NewClient(), strings.NewReader(script), &out, ""); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := strings.Join([]string{
		`"OK"`,
		`"hello world"`,
		"RESP2",
		"(integer) 1",
	}, "\n") + "\n"
	if out.String() != want {
		t.Errorf("Expected output\n%s\ngot\n%s", want, out.String())
	}
}

func TestExecuteReportsSyntaxErrors(t *testing.T) {
	hs := hosttest.New(t)

	var out bytes.Buffer
	err := Execute(context.Background(), hs.Host.NewClient(), strings.NewReader(`ECHO "open`), &out, "")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "(error) ERR unbalanced quotes") {
		t.Errorf("Expected syntax error, got %q", out.String())
	}
}
