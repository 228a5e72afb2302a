package manifest

// DetectionCommand probes for a component by running a command.
type DetectionCommand struct {
	Command string  `yaml:"command" json:"command"`
	Weight  float64 `yaml:"weight" json:"weight"`
}

// DetectionService probes for a component by systemd unit presence.
type DetectionService struct {
	Name   string  `yaml:"name" json:"name"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// DetectionFile probes for a component by file existence.
type DetectionFile struct {
	Path   string  `yaml:"path" json:"path"`
	Weight float64 `yaml:"weight" json:"weight"`
}

// Detection holds the weighted-confidence detection rules of a manifest.
type Detection struct {
	Commands []DetectionCommand `yaml:"commands,omitempty" json:"commands,omitempty"`
	Services []DetectionService `yaml:"services,omitempty" json:"services,omitempty"`
	Files    []DetectionFile    `yaml:"files,omitempty" json:"files,omitempty"`
}

// ActionRef names an install or uninstall action script.
type ActionRef struct {
	Action string `yaml:"action" json:"action"`
}

// Manifest is the immutable description of one monitoring module.
type Manifest struct {
	Name         string     `yaml:"name" json:"name"`
	Version      string     `yaml:"version" json:"version"`
	Port         int        `yaml:"port" json:"port"`
	Category     string     `yaml:"category" json:"category"`
	Install      *ActionRef `yaml:"install,omitempty" json:"install,omitempty"`
	Uninstall    *ActionRef `yaml:"uninstall,omitempty" json:"uninstall,omitempty"`
	Detection    Detection  `yaml:"detection,omitempty" json:"detection,omitempty"`
	Dependencies []string   `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}
