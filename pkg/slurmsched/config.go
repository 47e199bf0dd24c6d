package slurmsched

import "time"

// Config holds the YAML-loadable settings for one scheduler backend
// instance, keyed under "schedulers.<name>.*" in the host application's
// configuration file (see internal/common.MakeConfig).
type Config struct {
	// Kind selects the backend via the registry: "sacct" or "squeue".
	Kind string `yaml:"kind"`

	SbatchPath   string `yaml:"sbatch_path"`
	SacctPath    string `yaml:"sacct_path"`
	SqueuePath   string `yaml:"squeue_path"`
	ScancelPath  string `yaml:"scancel_path"`
	ScontrolPath string `yaml:"scontrol_path"`

	// IgnoreReqNodeNotAvail disables the ReqNodeNotAvail recoverability
	// check entirely: a job pending for that reason is never cancelled.
	IgnoreReqNodeNotAvail bool `yaml:"ignore_reqnodenotavail"`

	// UseNodesOption mirrors the ReFrame "use_nodes_option" scheduler
	// access option: emit an explicit "--nodes=" directive computed from
	// ntasks/ntasks-per-node instead of letting Slurm infer it.
	UseNodesOption bool `yaml:"use_nodes_option"`

	// JobSubmitTimeout bounds how long a single sbatch invocation may run
	// before it is considered failed.
	JobSubmitTimeout time.Duration `yaml:"job_submit_timeout"`

	// CommandTimeout bounds every other Slurm CLI invocation (sacct,
	// squeue, scancel, scontrol).
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

const (
	defaultSbatchPath   = "sbatch"
	defaultSacctPath    = "sacct"
	defaultSqueuePath   = "squeue"
	defaultScancelPath  = "scancel"
	defaultScontrolPath = "scontrol"

	defaultJobSubmitTimeout = 60 * time.Second
	defaultCommandTimeout   = 30 * time.Second
)

// withDefaults returns a copy of c with empty fields filled in from the
// package defaults. NewSacctBackend and NewRunner apply it when they are
// constructed, rather than scattering nil checks through the backend
// implementations; loading a Config from YAML does not apply it.
func (c Config) withDefaults() Config {
	if c.SbatchPath == "" {
		c.SbatchPath = defaultSbatchPath
	}

	if c.SacctPath == "" {
		c.SacctPath = defaultSacctPath
	}

	if c.SqueuePath == "" {
		c.SqueuePath = defaultSqueuePath
	}

	if c.ScancelPath == "" {
		c.ScancelPath = defaultScancelPath
	}

	if c.ScontrolPath == "" {
		c.ScontrolPath = defaultScontrolPath
	}

	if c.JobSubmitTimeout == 0 {
		c.JobSubmitTimeout = defaultJobSubmitTimeout
	}

	if c.CommandTimeout == 0 {
		c.CommandTimeout = defaultCommandTimeout
	}

	return c
}
