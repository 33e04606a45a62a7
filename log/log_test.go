package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestRandomStringIsRandom(t *testing.T) {
	a := GetLogToken()
	b := GetLogToken()
	if a == b {
		t.Fatal("strings are equal:", a, b)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	SetOutput(buf, true)
	defer SetOutput(os.Stderr, false)

	old := GetLoglevel()
	defer SetLoglevel(old)

	SetLoglevel(LOGLEVEL_WARNINGS)
	Log(LOGLEVEL_DEBUG, "hidden")
	Logf(LOGLEVEL_WARNINGS, "shown %d", 42)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("debug message logged at WARNINGS level:", out)
	}
	if !strings.Contains(out, "shown 42") || !strings.Contains(out, `"level":"warn"`) {
		t.Fatal("warning not logged:", out)
	}
}

func TestLoglevelString(t *testing.T) {
	if LoglevelString(LOGLEVEL_INFO) != "INFO" {
		t.Error("wrong name for INFO:", LoglevelString(LOGLEVEL_INFO))
	}
	if LoglevelString(17) != "UNKNOWN" {
		t.Error("out of range level has a name")
	}
}
