//go:build linux

package world

// linuxConfig mirrors the essential-paths / device / proc tuning knobs
// seen across the pack's Linux sandbox daemons: hardcoded FHS paths kept
// in one struct rather than scattered through the isolation steps.
type linuxConfig struct {
	essentialSystemPathsRO []string
	essentialDevices       []string
	cgroupRoot             string
	overlayBase            string
}

func newDefaultLinuxConfig() *linuxConfig {
	return &linuxConfig{
		essentialSystemPathsRO: []string{
			"/usr", "/bin", "/lib", "/lib64", "/etc",
		},
		essentialDevices: []string{
			"null", "zero", "urandom", "tty",
		},
		cgroupRoot:  "/sys/fs/cgroup",
		overlayBase: "/var/lib/substrate/worlds",
	}
}
