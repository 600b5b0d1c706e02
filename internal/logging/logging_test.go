package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("transfer")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("downloaded", "remote", "/Windows/System32/config/SYSTEM")

	out := buf.String()
	if !strings.Contains(out, "msg=downloaded") {
		t.Fatalf("expected plain downloaded message, got: %s", out)
	}
	if !strings.Contains(out, "component=transfer") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "remote=/Windows/System32/config/SYSTEM") {
		t.Fatalf("expected remote field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("regedit")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestWithHiveAttachesCorrelationField(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger := WithHive(L("regedit"), "/Windows/System32/config/SOFTWARE")
	logger.Info("resolved")

	out := buf.String()
	if !strings.Contains(out, "hive=/Windows/System32/config/SOFTWARE") {
		t.Fatalf("expected hive field, got: %s", out)
	}
}

func TestContextCarriesTaggedLogger(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "info", &buf)

	ctx := NewContext(context.Background(), L("convert").With(KeyImage, "/images/win2019.qcow2"))
	FromContext(ctx).Info("conversion started")

	out := buf.String()
	if !strings.Contains(out, "image=/images/win2019.qcow2") {
		t.Fatalf("expected image field from the context logger, got: %s", out)
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("bare context must yield the default logger")
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	for _, bogus := range []string{"", "verbose", "  "} {
		if got := parseLevel(bogus); got.String() != "INFO" {
			t.Fatalf("parseLevel(%q) = %v, want INFO", bogus, got)
		}
	}
}
