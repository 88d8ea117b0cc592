package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Veraticus/browser2excel/internal/cli"
	"github.com/Veraticus/browser2excel/internal/common"
	"github.com/Veraticus/browser2excel/internal/model"
	"github.com/Veraticus/browser2excel/internal/rules"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and try the classification rules",
	}
	cmd.AddCommand(rulesCheckCmd())
	cmd.AddCommand(rulesTestCmd())
	return cmd
}

func rulesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a rules file and list its rules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path := cfg.RulesPath
			if len(args) == 1 {
				path = args[0]
			}

			set, err := rules.Load(path)
			if err != nil {
				return common.NewUserError("Rules are invalid", err)
			}
			if _, err := rules.NewEngine(set); err != nil {
				return common.NewUserError("Rules are invalid", err)
			}

			source := path
			if source == "" {
				source = "built-in rules"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s: %d rules", source, len(set.Rules))))
			for _, line := range describeRules(set) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func rulesTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [label...]",
		Short: "Classify card labels",
		Long: `Classify each card label given as an argument, or one label per line from stdin.
Labels look like:

  Umsatz: ; AMAZON EU ; Verwendungszweck: ; Bestellung 123 ; Betrag: ; 12,34 EUR

Each result is printed as description;kind;frequency.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := loadRuleEngine(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(args) > 0 {
				for _, label := range args {
					fmt.Fprintln(out, classifyLabel(engine, label))
				}
				return nil
			}

			reader := cli.NewLineReader(cmd.InOrStdin())
			for {
				line, err := reader.ReadLine(cmd.Context())
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				fmt.Fprintln(out, classifyLabel(engine, line))
			}
		},
	}
}

// classifyLabel runs a card label through engine the way page records are classified.
func classifyLabel(engine *rules.Engine, label string) string {
	record := model.RawRecord{Label: model.StringPtr(label)}
	detail := record.Details()
	c := engine.Classify(detail.Receiver, detail.Topic, label)
	return strings.Join([]string{c.Description, c.Kind, c.Frequency}, ";")
}

func describeRules(set rules.Set) []string {
	lines := make([]string, 0, len(set.Rules)+1)
	for i, rule := range set.Rules {
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rule %d", i)
		}
		op := rule.Operator
		if op == "" {
			op = rules.OperatorAnd
		}
		lines = append(lines, fmt.Sprintf("  %2d. %-24s %-3s %d conditions -> %s", i, name, op, len(rule.Conditions), rule.Result.Kind))
	}
	lines = append(lines, fmt.Sprintf("      %-24s         -> %s", "default", set.Default.Kind))
	return lines
}
