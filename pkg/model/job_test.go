package model

import "testing"

func testProfileSet() JobProfileSet {
	return JobProfileSet{
		Serial:     SerialParams{Device: "/dev/ttyUSB0", Baud: 9600},
		Bridge:     BridgeParams{Host: "127.0.0.1", Port: 20000},
		Power:      PowerParams{Host: "10.0.0.5", Port: 5025, Channel: 1, DelaySeconds: 2},
		Region:     MemoryRegion{Start: 0x1000, Length: 4096},
		PayloadDir: "/opt/payloads",
		OutputPath: "/tmp/dump.bin",
	}
}

func TestResourceKeysDerivation(t *testing.T) {
	keys := testProfileSet().ResourceKeys()
	want := []ResourceKey{
		{Kind: ResourceSerial, ID: "/dev/ttyUSB0"},
		{Kind: ResourceTCP, ID: "127.0.0.1:20000"},
		{Kind: ResourcePower, ID: "10.0.0.5:5025:1"},
	}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %v, want %v", i, keys[i], want[i])
		}
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("dump-boot", testProfileSet())

	if job.State != JobStateCreated {
		t.Errorf("State = %s, want %s", job.State, JobStateCreated)
	}
	if job.ID.String() == "" {
		t.Error("ID should be assigned at creation")
	}
	if len(job.Resources) != 3 {
		t.Errorf("got %d resources, want 3", len(job.Resources))
	}
	if job.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestJobCloneIsIndependent(t *testing.T) {
	job := NewJob("dump-boot", testProfileSet())
	job.State = JobStateRunning

	c := job.Clone()
	c.State = JobStateFailed
	c.Resources[0].ID = "/dev/ttyUSB9"

	if job.State != JobStateRunning {
		t.Errorf("clone mutation leaked into original state: %s", job.State)
	}
	if job.Resources[0].ID != "/dev/ttyUSB0" {
		t.Errorf("clone mutation leaked into original resources: %s", job.Resources[0].ID)
	}
}
