// Package process runs short-lived helper commands such as the audio
// player and the mixer control.
//
// Each Process runs in its own process group so Stop reaches every child.
// A Pool caps how many processes of one kind run at the same time:
//
//	pool := process.NewPool(4)
//	p, err := pool.Start(ctx, process.Config{
//	    Name:   "tune",
//	    Binary: "mpg123",
//	    Args:   []string{"/usr/share/rover/sounds/bell.mp3"},
//	})
//	if errors.Is(err, process.ErrPoolFull) {
//	    // skip this sound
//	}
//
// Run starts a command and waits for it.
package process
