package broadcast

import "strconv"

// streamFileArgs builds the encoder invocation for one clip: read at native
// frame-rate, burn the overlay, encode to the fixed H.264/AAC profile, push
// FLV to the RTMP sink.
func streamFileArgs(cfg Config, filePath, filter string) []string {
	return []string{
		"-re",
		"-i", filePath,
		"-vf", filter,
		"-c:v", "libx264",
		"-preset", cfg.Preset,
		"-b:v", cfg.VideoBitrate,
		"-maxrate", cfg.VideoBitrate,
		"-bufsize", "6000k",
		"-pix_fmt", "yuv420p",
		"-g", "50",
		"-c:a", "aac",
		"-b:a", cfg.AudioBitrate,
		"-ar", "44100",
		"-f", "flv",
		cfg.RTMPURL,
	}
}

// streamIdleArgs builds the idle-filler invocation: the static idle image
// looped over silent audio for a bounded number of seconds.
func streamIdleArgs(cfg Config, seconds int) []string {
	return []string{
		"-loop", "1",
		"-i", cfg.IdleImage,
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-t", strconv.Itoa(seconds),
		"-c:v", "libx264",
		"-preset", cfg.Preset,
		"-b:v", "1000k",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", cfg.AudioBitrate,
		"-f", "flv",
		cfg.RTMPURL,
	}
}
