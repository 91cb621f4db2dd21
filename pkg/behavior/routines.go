package behavior

import (
	"context"
	"fmt"
	"time"
)

// Timing holds the waits used by the interaction routines.
type Timing struct {
	FrameWait   time.Duration // How long to wait for an iframe to attach
	FramePoll   time.Duration
	PlayWait    time.Duration // Wait for a video play control
	SlideWait   time.Duration // Wait for the carousel next control
	ControlWait time.Duration // Wait for other clickable controls
	Settle      time.Duration // Pause after an interaction
	Prepare     time.Duration // Pause before the snapshot of a ready player
}

// DefaultTiming returns the production waits.
func DefaultTiming() Timing {
	return Timing{
		FrameWait:   3 * time.Second,
		FramePoll:   500 * time.Millisecond,
		PlayWait:    10 * time.Second,
		SlideWait:   500 * time.Millisecond,
		ControlWait: time.Second,
		Settle:      time.Second,
		Prepare:     500 * time.Millisecond,
	}
}

var routines = map[string]Routine{
	"tweet":          runTweet,
	"instagram":      runInstagram,
	"youtube":        runYouTube,
	"facebook":       runFacebookPost,
	"facebook_video": runFacebookVideo,
}

const clickShadowScript = `(() => {
	const widget = document.querySelector(%q);
	if (!widget || !widget.shadowRoot) {
		return false;
	}
	const target = widget.shadowRoot.querySelector(%q);
	if (target) {
		target.click();
		return true;
	}
	return false;
})()`

func runTweet(ctx context.Context, env Env) bool {
	if err := waitSelector(ctx, env, 0, "twitter-widget", env.Timing.FrameWait); err != nil {
		env.Logger.Warn("Tweet widget not found: %s", err)
		return false
	}

	env.snapshot(ctx)

	var clicked bool
	script := fmt.Sprintf(clickShadowScript, "twitter-widget", `div[data-scribe="element:play_button"]`)
	if err := env.Browser.Evaluate(ctx, script, &clicked); err != nil {
		env.Logger.Warn("Failed to click tweet play button: %s", err)
		return false
	}
	if clicked {
		env.status("Loading Video...")
	}
	return clicked
}

func runInstagram(ctx context.Context, env Env) bool {
	const frame = 1
	if !waitForFrame(ctx, env, frame) {
		env.Logger.Warn("Embed frame %d never attached", frame)
		return false
	}

	slides, err := env.Browser.Count(ctx, frame, "ul > li")
	if err != nil {
		env.Logger.Debug("Failed to list slides: %s", err)
	}

	env.snapshot(ctx)

	if slides > 0 {
		for i := 1; i <= slides; i++ {
			if i > 1 {
				env.status("Loading Slides...")
				if err := waitForClick(ctx, env, frame, "div.coreSpriteRightChevron", env.Timing.SlideWait); err != nil {
					env.Logger.Debug("Failed to advance slide %d: %s", i, err)
				}
				if sleep(ctx, env.Timing.Settle) != nil {
					return false
				}
			}

			video := fmt.Sprintf("ul > li:nth-of-type(%d) video", i)
			if n, _ := env.Browser.Count(ctx, frame, video); n > 0 {
				env.status("Loading Video...")
				if err := env.Browser.Click(ctx, frame, video); err != nil {
					env.Logger.Debug("Failed to start slide video: %s", err)
				}
				if sleep(ctx, env.Timing.Settle) != nil {
					return false
				}
			}
		}
		return false
	}

	videos, _ := env.Browser.Count(ctx, frame, "video")
	for i := 0; i < videos; i++ {
		env.status("Loading Video...")
		if err := env.Browser.ClickNth(ctx, frame, "video", i); err != nil {
			env.Logger.Debug("Failed to start video %d: %s", i, err)
		}
		if sleep(ctx, env.Timing.Settle) != nil {
			break
		}
	}
	return true
}

// runYouTube reports true even when no play button shows up: the rule
// matched, there was just nothing to click.
func runYouTube(ctx context.Context, env Env) bool {
	const frame = 1
	if !waitForFrame(ctx, env, frame) {
		env.Logger.Warn("Embed frame %d never attached", frame)
		return false
	}

	const play = `button[aria-label="Play"]`
	if err := waitSelector(ctx, env, frame, play, env.Timing.PlayWait); err != nil {
		env.Logger.Warn("No play button: %s", err)
		return true
	}
	if sleep(ctx, env.Timing.Prepare) != nil {
		return true
	}

	env.snapshot(ctx)

	env.status("Loading Video...")
	if err := env.Browser.Click(ctx, frame, play); err != nil {
		env.Logger.Warn("Failed to click play button: %s", err)
	}
	return true
}

func runFacebookPost(ctx context.Context, env Env) bool {
	if !prepareFacebook(ctx, env, "div.fb-post") {
		return true
	}
	_ = sleep(ctx, env.Timing.Settle)
	return true
}

func runFacebookVideo(ctx context.Context, env Env) bool {
	if !prepareFacebook(ctx, env, "div.fb-video") {
		return true
	}

	env.status("Playing Video...")
	if err := waitForClick(ctx, env, 2, "input[type=button][aria-label]", env.Timing.ControlWait); err != nil {
		env.Logger.Debug("Failed to start video: %s", err)
	}
	_ = sleep(ctx, env.Timing.Settle)
	return true
}

// prepareFacebook waits for the plugin frame and its container, then snapshots.
func prepareFacebook(ctx context.Context, env Env, container string) bool {
	const frame = 2
	if !waitForFrame(ctx, env, frame) {
		env.Logger.Warn("Embed frame %d never attached", frame)
		return false
	}
	if err := env.Browser.WaitSelector(ctx, frame, "[aria-label]"); err != nil {
		env.Logger.Warn("Facebook plugin did not render: %s", err)
		return false
	}
	if err := env.Browser.WaitSelector(ctx, 0, container); err != nil {
		env.Logger.Warn("Facebook container %s not found: %s", container, err)
		return false
	}
	env.snapshot(ctx)
	return true
}

// waitForFrame polls until the page has more than index frames.
func waitForFrame(ctx context.Context, env Env, index int) bool {
	deadline := time.Now().Add(env.Timing.FrameWait)
	for {
		n, err := env.Browser.FrameCount(ctx)
		if err == nil && n > index {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if sleep(ctx, env.Timing.FramePoll) != nil {
			return false
		}
	}
}

func waitSelector(ctx context.Context, env Env, frame int, selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return env.Browser.WaitSelector(ctx, frame, selector)
}

func waitForClick(ctx context.Context, env Env, frame int, selector string, timeout time.Duration) error {
	if err := waitSelector(ctx, env, frame, selector, timeout); err != nil {
		return err
	}
	return env.Browser.Click(ctx, frame, selector)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
