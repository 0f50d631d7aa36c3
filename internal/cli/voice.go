package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcookbook/model/provider"
	"github.com/hupe1980/agentcookbook/tutorials/voiceassistant"
)

func newVoiceCmd(a *app) *cobra.Command {
	var (
		audio  bool
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Chat with the voice assistant",
		Long: `Interactive voice assistant on a live model session. Type a message to
send it, or use one of the commands:

  /audio        toggle spoken replies
  /say <file>   send a 16 kHz mono WAV recording
  /quit         leave

Spoken replies are written to the output directory as WAV files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			liveCfg := a.cfg.Model
			liveCfg.Name = a.cfg.Voice.LiveModel
			live, err := provider.NewLive(ctx, liveCfg)
			if err != nil {
				return err
			}

			textCfg := a.cfg.Model
			textCfg.Name = a.cfg.Voice.TextModel
			text, err := provider.New(ctx, textCfg)
			if err != nil {
				return err
			}

			va := voiceassistant.New(live, func(o *voiceassistant.Options) {
				o.TextModel = text
				o.Voice = a.cfg.Voice.Voice
				o.AudioMode = audio
				o.Logger = a.logger
			})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Voice assistant ready. /audio toggles spoken replies, /quit exits.")

			turn := 0
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())

				var reply voiceassistant.Reply
				switch {
				case line == "":
					continue
				case line == "/quit":
					return nil
				case line == "/audio":
					va.SetAudioMode(!va.AudioMode())
					fmt.Fprintf(out, "audio mode: %v\n", va.AudioMode())
					continue
				case strings.HasPrefix(line, "/say "):
					pcm, err := readRecording(strings.TrimSpace(strings.TrimPrefix(line, "/say ")))
					if err != nil {
						fmt.Fprintln(out, "error:", err)
						continue
					}
					reply, err = va.SendAudio(ctx, pcm)
					if err != nil {
						fmt.Fprintln(out, "error:", err)
						continue
					}
				default:
					reply, err = va.SendText(ctx, line)
					if err != nil {
						a.logger.Warn("voice.turn_failed", "error", err)
					}
				}

				turn++
				if reply.Text != "" {
					fmt.Fprintln(out, reply.Text)
				}
				if len(reply.Audio) > 0 {
					path := filepath.Join(outDir, fmt.Sprintf("reply-%03d.wav", turn))
					if err := voiceassistant.SaveWAV(path, reply.PCM(), a.cfg.Voice.SampleRate); err != nil {
						fmt.Fprintln(out, "error:", err)
						continue
					}
					fmt.Fprintf(out, "[audio %.1fs saved to %s]\n", voiceassistant.Duration(reply.PCM(), a.cfg.Voice.SampleRate), path)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&audio, "audio", false, "start with spoken replies")
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for spoken replies")

	return cmd
}

func readRecording(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pcm, rate, err := voiceassistant.ReadWAV(f)
	if err != nil {
		return nil, err
	}
	if rate != voiceassistant.SampleRate {
		return nil, fmt.Errorf("recording must be %d Hz, got %d Hz", voiceassistant.SampleRate, rate)
	}
	return pcm, nil
}
