package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"visualgen/internal/bootstrap"
	"visualgen/internal/providers/jimeng"
)

// requestFlags collects every per-kind flag; each subcommand registers the
// subset its kind understands.
type requestFlags struct {
	prompt      string
	image       string
	imageURL    string
	aspectRatio string
	controlNet  string
	seed        int
	width       int
	height      int
	strength    float64
}

type kindSpec struct {
	kind  jimeng.Kind
	use   string
	short string
	flags func(cmd *cobra.Command, f *requestFlags)
}

var kindSpecs = []kindSpec{
	{
		kind:  jimeng.KindTextToVideo,
		use:   "t2v [prompt]",
		short: "Generate a video from a prompt",
		flags: func(cmd *cobra.Command, f *requestFlags) {
			cmd.Flags().StringVar(&f.aspectRatio, "aspect-ratio", jimeng.DefaultAspectRatio, "output aspect ratio")
			cmd.Flags().IntVar(&f.seed, "seed", -1, "random seed, -1 for random")
		},
	},
	{
		kind:  jimeng.KindImageToVideo,
		use:   "i2v [prompt]",
		short: "Animate an image into a video",
		flags: func(cmd *cobra.Command, f *requestFlags) {
			cmd.Flags().StringVar(&f.image, "image", "", "source image file")
			cmd.Flags().StringVar(&f.imageURL, "image-url", "", "source image URL, used when --image is not given")
			cmd.Flags().StringVar(&f.aspectRatio, "aspect-ratio", jimeng.DefaultAspectRatio, "output aspect ratio")
			cmd.Flags().IntVar(&f.seed, "seed", -1, "random seed, -1 for random")
		},
	},
	{
		kind:  jimeng.KindTextToImage,
		use:   "t2i [prompt]",
		short: "Generate an image from a prompt",
		flags: func(cmd *cobra.Command, f *requestFlags) {
			cmd.Flags().IntVar(&f.width, "width", 512, "image width in pixels")
			cmd.Flags().IntVar(&f.height, "height", 512, "image height in pixels")
			cmd.Flags().IntVar(&f.seed, "seed", -1, "random seed, -1 for random")
		},
	},
	{
		kind:  jimeng.KindImageToImage,
		use:   "i2i [prompt]",
		short: "Re-render an image under ControlNet guidance",
		flags: func(cmd *cobra.Command, f *requestFlags) {
			cmd.Flags().StringVar(&f.image, "image", "", "source image file")
			cmd.Flags().StringVar(&f.controlNet, "controlnet", "depth", "guidance type: canny, depth or pose")
			cmd.Flags().Float64Var(&f.strength, "strength", 0.6, "guidance strength between 0 and 1")
		},
	},
	{
		kind:  jimeng.KindImageEdit,
		use:   "edit [instruction]",
		short: "Edit an image with an instruction",
		flags: func(cmd *cobra.Command, f *requestFlags) {
			cmd.Flags().StringVar(&f.image, "image", "", "source image file")
			cmd.Flags().Float64Var(&f.strength, "strength", 0.5, "edit strength between 0 and 1")
		},
	},
}

func generateCommands(opts *globalOptions) []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(kindSpecs))
	for _, spec := range kindSpecs {
		cmds = append(cmds, newGenerateCmd(opts, spec))
	}
	return cmds
}

func newGenerateCmd(opts *globalOptions, spec kindSpec) *cobra.Command {
	f := &requestFlags{}
	cmd := &cobra.Command{
		Use:   spec.use,
		Short: spec.short,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.build(cmd, spec.kind, args, os.ReadFile)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger := newLogger(cmd, cfg, opts)
			client, err := bootstrap.TaskClient(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			poller := bootstrap.Poller(client, cfg, logger, progressPrinter(cmd.ErrOrStderr()))
			out := poller.Run(cmd.Context(), req)
			return printOutcome(cmd.OutOrStdout(), out, opts.jsonOut)
		},
	}
	f.register(cmd, spec)
	return cmd
}

func (f *requestFlags) register(cmd *cobra.Command, spec kindSpec) {
	cmd.Flags().StringVarP(&f.prompt, "prompt", "p", "", "prompt text, or pass it as arguments")
	spec.flags(cmd, f)
}

// build renders the flags as the typed request for kind. Image files are
// read and base64 encoded.
func (f *requestFlags) build(cmd *cobra.Command, kind jimeng.Kind, args []string, readFile func(string) ([]byte, error)) (jimeng.Request, error) {
	prompt := strings.TrimSpace(f.prompt)
	if prompt == "" {
		prompt = strings.TrimSpace(strings.Join(args, " "))
	}

	payload := jimeng.ProxyPayload{
		Prompt:         prompt,
		ImageURL:       f.imageURL,
		AspectRatio:    f.aspectRatio,
		ControlNetType: f.controlNet,
		Width:          f.width,
		Height:         f.height,
	}
	if flag := cmd.Flags().Lookup("seed"); flag != nil && flag.Changed {
		seed := f.seed
		payload.Seed = &seed
	}
	if flag := cmd.Flags().Lookup("strength"); flag != nil && flag.Changed {
		strength := f.strength
		payload.Strength = &strength
	}
	if f.image != "" {
		data, err := readFile(f.image)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		payload.ImageBase64 = base64.StdEncoding.EncodeToString(data)
	}

	req, err := payload.Request(kind)
	if err != nil {
		return nil, err
	}
	if err := jimeng.Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}
