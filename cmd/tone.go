// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"spectrum/internal/source"
)

type toneOptions struct {
	frequency  float64
	amplitude  float64
	seconds    float64
	sampleRate int
	channels   int
	bitDepth   int
}

// newToneCommand writes a sine tone to a WAV file, which gives analyze a
// known input to check against.
func newToneCommand() *cobra.Command {
	opts := toneOptions{}

	toneCmd := &cobra.Command{
		Use:   "tone OUT.wav",
		Short: "Write a sine tone to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.frequency <= 0 || opts.seconds <= 0 || opts.sampleRate <= 0 {
				return fmt.Errorf("frequency, seconds and sample rate must be positive")
			}
			if opts.frequency >= float64(opts.sampleRate)/2 {
				return fmt.Errorf("frequency %g Hz is at or above the Nyquist limit of %d Hz",
					opts.frequency, opts.sampleRate/2)
			}

			samples := source.Tone(opts.frequency, opts.amplitude, opts.seconds,
				float64(opts.sampleRate), opts.channels)
			if err := source.WriteWAV(args[0], samples, opts.sampleRate, opts.channels, opts.bitDepth); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %g Hz, %gs, %d Hz, %d channel(s), %d bit\n",
				args[0], opts.frequency, opts.seconds, opts.sampleRate, opts.channels, opts.bitDepth)
			return nil
		},
	}

	flags := toneCmd.Flags()
	flags.Float64VarP(&opts.frequency, "frequency", "f", 440, "Tone frequency in Hz")
	flags.Float64VarP(&opts.amplitude, "amplitude", "a", 0.5, "Peak amplitude in [0, 1]")
	flags.Float64Var(&opts.seconds, "seconds", 2, "Length of the tone")
	flags.IntVarP(&opts.sampleRate, "sample-rate", "s", 44100, "Sample rate, measured in Hertz (Hz)")
	flags.IntVarP(&opts.channels, "channels", "c", 1, "Number of channels (1=mono, 2=stereo)")
	flags.IntVar(&opts.bitDepth, "bit-depth", 16, "Bits per sample (16, 24 or 32)")
	return toneCmd
}
