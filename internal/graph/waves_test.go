package graph

import (
	"reflect"
	"testing"

	"github.com/stagehand-dev/stagehand/internal/config"
)

func TestWaves(t *testing.T) {
	tasks, err := Normalize([]config.RawTask{
		rawTask("schema"),
		rawTask("api", "schema"),
		rawTask("ui", "schema"),
		rawTask("e2e", "api", "ui"),
	})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	waves, err := Waves(tasks)
	if err != nil {
		t.Fatalf("Waves: %v", err)
	}
	want := [][]string{{"schema"}, {"api", "ui"}, {"e2e"}}
	if !reflect.DeepEqual(waves, want) {
		t.Errorf("Waves = %v, want %v", waves, want)
	}
}

func TestWavesDetectsCycle(t *testing.T) {
	// Normalize only checks referential validity, so a cycle survives to
	// the wave computation.
	tasks := []Task{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}
	if _, err := Waves(tasks); err == nil {
		t.Fatal("Waves = nil error, want cycle detection")
	}
}
