package inventory

import (
	"testing"
)

func TestDataHelpers(t *testing.T) {
	d := Data{"name": "web1", "port": 8080, "active": true}

	if got := d.String("name"); got != "web1" {
		t.Errorf("String(name) = %q", got)
	}
	if got := d.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
	if got := d.Int("port", 0); got != 8080 {
		t.Errorf("Int(port) = %d", got)
	}
	if got := d.Int("missing", 22); got != 22 {
		t.Errorf("Int(missing) = %d, want default", got)
	}
	if !d.Bool("active") {
		t.Error("Bool(active) = false")
	}
	if d.Bool("missing") {
		t.Error("Bool(missing) = true")
	}
}

func TestDataMergeOverlayWins(t *testing.T) {
	base := Data{"a": 1, "b": 1}
	overlay := Data{"b": 2, "c": 2}

	merged := base.Merge(overlay)
	if merged["a"] != 1 || merged["b"] != 2 || merged["c"] != 2 {
		t.Errorf("unexpected merge %v", merged)
	}

	// Merge copies; neither input may be mutated.
	if base["b"] != 1 {
		t.Error("Merge mutated its receiver")
	}
}

func TestGetGroupsDataLaterGroupsWin(t *testing.T) {
	inv := New()
	inv.AddGroup(&Group{Name: "base", Data: Data{"port": 22, "env": "dev"}})
	inv.AddGroup(&Group{Name: "prod", Data: Data{"env": "prod"}})

	data := inv.GetGroupsData([]string{"base", "prod"})
	if data.Int("port", 0) != 22 {
		t.Errorf("port = %d", data.Int("port", 0))
	}
	if data.String("env") != "prod" {
		t.Errorf("later group should win, env = %q", data.String("env"))
	}

	// Unknown groups are skipped, not an error.
	data = inv.GetGroupsData([]string{"base", "ghost"})
	if data.String("env") != "dev" {
		t.Errorf("env = %q", data.String("env"))
	}
}

func TestGetHostDataReturnsCopy(t *testing.T) {
	inv := New()
	inv.AddHost(&Entry{Name: "web1", Data: Data{"k": "v"}})

	data := inv.GetHostData("web1")
	data["k"] = "mutated"

	if inv.GetHostData("web1").String("k") != "v" {
		t.Error("GetHostData must return a copy")
	}
}

func TestSetHostDataLiveMutation(t *testing.T) {
	inv := New()
	inv.AddHost(&Entry{Name: "web1"})

	inv.SetHostData("web1", "discovered_ip", "10.0.0.5")
	if got := inv.GetHostData("web1").String("discovered_ip"); got != "10.0.0.5" {
		t.Errorf("discovered_ip = %q", got)
	}

	// Setting data on an unknown host creates the entry.
	inv.SetHostData("new1", "k", "v")
	if inv.Host("new1") == nil {
		t.Error("SetHostData should create missing hosts")
	}
}

func TestHostsSorted(t *testing.T) {
	inv := New()
	for _, name := range []string{"web2", "db1", "web1"} {
		inv.AddHost(&Entry{Name: name})
	}

	entries := inv.Hosts()
	want := []string{"db1", "web1", "web2"}
	for i := range want {
		if entries[i].Name != want[i] {
			t.Errorf("Hosts()[%d] = %q, want %q", i, entries[i].Name, want[i])
		}
	}
}
