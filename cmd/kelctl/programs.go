package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"eload-service/internal/service"
	"eload-service/pkg/kel"
)

// Program kinds accepted by the program command
const (
	programList    = "list"
	programOCP     = "ocp"
	programOPP     = "opp"
	programBattery = "battery"
)

// dynamicFile is the on-disk form of a dynamic program
type dynamicFile struct {
	Tag  int       `yaml:"tag"`
	List yaml.Node `yaml:"list"`
}

func newProgramCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "program",
		Short: "Download or upload stored programs (list, ocp, opp, battery)",
	}
	cmd.AddCommand(newProgramGetCmd(flags))
	cmd.AddCommand(newProgramSetCmd(flags))
	return cmd
}

func newProgramGetCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "get KIND SLOT",
		Short:   "Recall a slot and print the stored program",
		Example: `  kelctl program get ocp 3 > ocp3.yaml`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid slot %q", args[1])
			}
			return withSession(flags, func(ctx context.Context, s *session) error {
				program, err := getProgram(ctx, s.svc, args[0], slot)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, program)
			})
		},
	}
}

func newProgramSetCmd(flags *globalFlags) *cobra.Command {
	var (
		file     string
		noRecall bool
	)

	cmd := &cobra.Command{
		Use:   "set KIND SLOT -f FILE",
		Short: "Upload a program from a YAML file",
		Long: `Upload a program from a YAML file, or stdin with -f -. The field names match
the output of "program get", so a downloaded program can be edited and sent
back. The slot argument overrides the slot in the file.`,
		Example: `  kelctl program set battery 1 -f battery.yaml
  kelctl program get list 2 | kelctl program set list 4 -f -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			slot, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid slot %q", args[1])
			}
			program, err := loadProgram(file, args[0], slot)
			if err != nil {
				return err
			}
			return withSession(flags, func(ctx context.Context, s *session) error {
				return setProgram(ctx, s.svc, program, !noRecall)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with the program, - for stdin")
	cmd.Flags().BoolVar(&noRecall, "no-recall", false, "Do not recall the slot after upload")
	return cmd
}

// loadProgram reads a program of the given kind from path and pins its slot
func loadProgram(path, kind string, slot int) (interface{}, error) {
	switch kind {
	case programList:
		list := &kel.LoadList{}
		if err := readYAMLFile(path, list); err != nil {
			return nil, err
		}
		list.Slot = slot
		return list, nil
	case programOCP:
		list := &kel.OCPList{}
		if err := readYAMLFile(path, list); err != nil {
			return nil, err
		}
		list.Slot = slot
		return list, nil
	case programOPP:
		list := &kel.OPPList{}
		if err := readYAMLFile(path, list); err != nil {
			return nil, err
		}
		list.Slot = slot
		return list, nil
	case programBattery:
		list := &kel.BatteryList{}
		if err := readYAMLFile(path, list); err != nil {
			return nil, err
		}
		list.Slot = slot
		return list, nil
	}
	return nil, unknownKind(kind)
}

func getProgram(ctx context.Context, svc *service.LoadService, kind string, slot int) (interface{}, error) {
	switch kind {
	case programList:
		return svc.GetList(ctx, slot)
	case programOCP:
		return svc.GetOCP(ctx, slot)
	case programOPP:
		return svc.GetOPP(ctx, slot)
	case programBattery:
		return svc.GetBattery(ctx, slot)
	}
	return nil, unknownKind(kind)
}

func setProgram(ctx context.Context, svc *service.LoadService, program interface{}, recall bool) error {
	switch p := program.(type) {
	case *kel.LoadList:
		return svc.SetList(ctx, p, recall)
	case *kel.OCPList:
		return svc.SetOCP(ctx, p, recall)
	case *kel.OPPList:
		return svc.SetOPP(ctx, p, recall)
	case *kel.BatteryList:
		return svc.SetBattery(ctx, p, recall)
	}
	return fmt.Errorf("unsupported program type %T", program)
}

func unknownKind(kind string) error {
	return fmt.Errorf("unknown program kind %q; must be list, ocp, opp or battery", kind)
}

func newDynamicCmd(flags *globalFlags) *cobra.Command {
	var (
		file     string
		noRecall bool
	)

	cmd := &cobra.Command{
		Use:   "dynamic",
		Short: "Read or upload the dynamic program",
		Long: `Read the active dynamic program, or upload one from a YAML file with -f.

The file carries the variant tag (1 CV, 2 CC, 3 CR, 4 CW, 5 pulse, 6 toggle)
and its fields:

  tag: 2
  list:
    slope1: 1
    slope2: 1
    current1: 1
    current2: 2
    frequency: 10
    duty_cycle: 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var upload kel.DynamicList
			if file != "" {
				var err error
				if upload, err = loadDynamicList(file); err != nil {
					return err
				}
			}

			return withSession(flags, func(ctx context.Context, s *session) error {
				if upload != nil {
					if err := s.svc.SetDynamicList(ctx, upload, !noRecall); err != nil {
						return err
					}
				}
				list, err := s.svc.DynamicList(ctx)
				if err != nil {
					return err
				}
				return printResult(cmd.OutOrStdout(), flags.output, map[string]interface{}{
					"tag":  list.Tag(),
					"mode": list.Mode(),
					"list": list,
				})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML file with the program to upload, - for stdin")
	cmd.Flags().BoolVar(&noRecall, "no-recall", false, "Do not query the program after upload")
	return cmd
}

func loadDynamicList(path string) (kel.DynamicList, error) {
	var f dynamicFile
	if err := readYAMLFile(path, &f); err != nil {
		return nil, err
	}
	list, err := kel.NewDynamicList(f.Tag)
	if err != nil {
		return nil, err
	}
	if err := f.List.Decode(list); err != nil {
		return nil, fmt.Errorf("failed to decode dynamic program: %w", err)
	}
	return list, nil
}
