package domain

// Container represents a container started from a built image.
type Container struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Status    string `json:"status"`
	State     string `json:"state"` // running, exited, etc.
	IPAddress string `json:"ip_address,omitempty"`
	Port      int    `json:"port,omitempty"`
}

// RunSpec describes how to start a container from a built image.
type RunSpec struct {
	Image string
	Name  string
	// Port is injected as PORT and published on 0.0.0.0.
	Port          int
	Env           []EnvVar
	RestartPolicy string
}

// Package is one installed distribution inside an image.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PackageChange is a difference between two installed-package lists.
// An empty Before means added, an empty After means removed.
type PackageChange struct {
	Name   string `json:"name"`
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}
