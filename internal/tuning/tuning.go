package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	RuntimeURL string `yaml:"runtime_url"`
	WorkerType string `yaml:"worker_type"`

	InboxSize           int `yaml:"inbox_size"`
	ReliableRPCAttempts int `yaml:"reliable_rpc_attempts"`

	Persistence Persistence `yaml:"persistence"`
}

type Persistence struct {
	Journal bool `yaml:"journal"`
	Index   bool `yaml:"index"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:     "1.0",
		RuntimeURL:          "ws://127.0.0.1:8080/v1/ws",
		WorkerType:          "UnrealWorker",
		InboxSize:           1024,
		ReliableRPCAttempts: 3,
		Persistence:         Persistence{Journal: true, Index: true},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}
