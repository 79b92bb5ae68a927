package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/animus-labs/apideploy/internal/config"
	"github.com/animus-labs/apideploy/internal/deployer"
	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/hooks"
	"github.com/animus-labs/apideploy/internal/openapi"
	"github.com/animus-labs/apideploy/internal/orchestrator"
	"github.com/animus-labs/apideploy/internal/platform/env"
)

func (a *app) rootCommand(ctx context.Context) (*cobra.Command, error) {
	var (
		global globalFlags
		flags  contextFlags
	)
	root := &cobra.Command{
		Use:           "apideploy",
		Short:         "Deploy the HTTP APIs of a project tree",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// Read by scanGlobal before the tree is built; declared so they parse.
	root.PersistentFlags().StringVarP(&global.projectDir, "project-dir", "C", ".", "project root holding "+config.FileName)
	root.PersistentFlags().StringVar(&global.logLevel, "log-level", "info", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&global.logFormat, "log-format", "text", "text or json")
	root.PersistentFlags().StringVar(&flags.environment, "env", "", "environment label, overrides the project file")
	root.PersistentFlags().StringVar(&flags.stage, "stage", "", "stage label, overrides the project file")
	root.PersistentFlags().StringVar(&flags.region, "region", "", "provider region, overrides the project file")
	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "aws or memory, overrides the project file")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return configError(err)
	})

	prepare := func(cmd *cobra.Command, _ []string) error {
		return a.prepare(cmd.Context(), flags)
	}

	deploy := a.deployCommand()
	deploy.PreRunE = prepare

	spec := &cobra.Command{Use: "spec", Short: "Render API documents"}
	generate := a.specGenerateCommand(&flags)
	spec.AddCommand(generate)

	functions := &cobra.Command{Use: "functions", Short: "Manage functions"}
	functionsDeploy := a.entityDeployCommand("functions", "deploy functions; every project function when no id is given", a.deployFunctions)
	functionsDeploy.PreRunE = prepare
	functions.AddCommand(functionsDeploy)

	roles := &cobra.Command{Use: "roles", Short: "Manage roles"}
	rolesDeploy := a.entityDeployCommand("roles", "deploy roles and the policies they attach", a.deployRoles)
	rolesDeploy.PreRunE = prepare
	roles.AddCommand(rolesDeploy)

	policies := &cobra.Command{Use: "policies", Short: "Manage managed policies"}
	policiesDeploy := a.entityDeployCommand("policies", "deploy managed policies", a.deployPolicies)
	policiesDeploy.PreRunE = prepare
	policies.AddCommand(policiesDeploy)

	root.AddCommand(deploy, spec, functions, roles, policies, a.listCommand())

	for name, cmd := range map[string]*cobra.Command{
		"deploy":           deploy,
		"spec generate":    generate,
		"functions deploy": functionsDeploy,
		"roles deploy":     rolesDeploy,
		"policies deploy":  policiesDeploy,
	} {
		if _, err := hooks.FireValue(ctx, a.bus, hooks.CreateCommand, hooks.CommandEvent{Name: name, Command: cmd}); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	return root, nil
}

func (a *app) deployCommand() *cobra.Command {
	var (
		apis        []string
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy functions and publish APIs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.writeMetrics(metricsFile)
			o, err := a.orchestrator()
			if err != nil {
				return err
			}
			res, err := o.Deploy(cmd.Context(), orchestrator.Request{APIs: apis})
			if err != nil {
				printRemediation(cmd.ErrOrStderr(), err)
				return err
			}
			printDeploy(cmd.OutOrStdout(), res)
			if failed := res.Failed(); len(failed) > 0 {
				return &exitError{code: exitFailure, err: fmt.Errorf("%d of %d apis failed", len(failed), len(res.Reports))}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&apis, "api", env.Strings(env.Key("APIS"), nil), "api identifiers to deploy, all when empty")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	return cmd
}

func (a *app) specGenerateCommand(flags *contextFlags) *cobra.Command {
	var (
		apis    []string
		variant string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Render API documents without deploying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := openapi.ParseVariant(variant)
			if err != nil {
				return configError(err)
			}
			rehearsal := *flags
			rehearsal.provider = config.ProviderMemory
			if err := a.prepare(cmd.Context(), rehearsal); err != nil {
				return err
			}
			o, err := a.orchestrator()
			if err != nil {
				return err
			}
			docs, err := o.GenerateSpec(cmd.Context(), orchestrator.Request{APIs: apis}, v)
			if err != nil {
				return err
			}
			return writeDocuments(cmd, docs, out)
		},
	}
	cmd.Flags().StringSliceVar(&apis, "api", nil, "api identifiers, all when empty")
	cmd.Flags().StringVar(&variant, "variant", string(openapi.VariantGateway), "gateway, doc or complete")
	cmd.Flags().StringVar(&out, "out", "", "directory receiving <api>.<variant>.json, stdout when empty")
	return cmd
}

func writeDocuments(cmd *cobra.Command, docs []orchestrator.Document, dir string) error {
	for _, doc := range docs {
		body, err := openapi.Marshal(doc.Document)
		if err != nil {
			return err
		}
		if dir == "" {
			if _, err := cmd.OutOrStdout().Write(body); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(dir, fmt.Sprintf("%s.%s.json", doc.API, doc.Variant))
		if err := os.WriteFile(path, body, 0o644); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}

type entityDeployFunc func(ctx context.Context, ids []string) ([]deployer.Report, error)

func (a *app) entityDeployCommand(kind, short string, deploy entityDeployFunc) *cobra.Command {
	var metricsFile string
	cmd := &cobra.Command{
		Use:   "deploy [id...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer a.writeMetrics(metricsFile)
			reports, err := deploy(cmd.Context(), args)
			printEntities(cmd.OutOrStdout(), reports)
			if err != nil {
				printRemediation(cmd.ErrOrStderr(), err)
				return fmt.Errorf("deploy %s: %w", kind, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file")
	return cmd
}

// deployEach deploys every id concurrently. Failures are joined; successful
// reports are returned in id order.
func deployEach(ctx context.Context, ids []string, deploy func(context.Context, string) (deployer.Report, error)) ([]deployer.Report, error) {
	reports := make([]deployer.Report, len(ids))
	ok := make([]bool, len(ids))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			r, err := deploy(gctx, id)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			reports[i], ok[i] = r, true
			return nil
		})
	}
	_ = g.Wait()
	out := make([]deployer.Report, 0, len(ids))
	for i := range reports {
		if ok[i] {
			out = append(out, reports[i])
		}
	}
	return out, errors.Join(errs...)
}

func (a *app) deployFunctions(ctx context.Context, ids []string) ([]deployer.Report, error) {
	if len(ids) == 0 {
		all, err := a.registry.FunctionIDs()
		if err != nil {
			return nil, err
		}
		ids = all
	}
	return deployEach(ctx, ids, func(ctx context.Context, id string) (deployer.Report, error) {
		fn, err := a.registry.LoadFunction(id)
		if err != nil {
			return deployer.Report{}, err
		}
		return a.deployer().DeployFunction(ctx, fn)
	})
}

func (a *app) deployRoles(ctx context.Context, ids []string) ([]deployer.Report, error) {
	var listErr error
	if len(ids) == 0 {
		ids, listErr = a.registry.RoleIDs()
	}
	reports, err := deployEach(ctx, ids, func(ctx context.Context, id string) (deployer.Report, error) {
		role, err := a.registry.RoleByIdentifier(id)
		if err != nil {
			return deployer.Report{}, err
		}
		return a.deployer().DeployRole(ctx, role)
	})
	return reports, errors.Join(listErr, err)
}

func (a *app) deployPolicies(ctx context.Context, ids []string) ([]deployer.Report, error) {
	var listErr error
	if len(ids) == 0 {
		ids, listErr = a.registry.PolicyIDs()
	}
	reports, err := deployEach(ctx, ids, func(ctx context.Context, id string) (deployer.Report, error) {
		policy, err := a.registry.PolicyByIdentifier(id)
		if err != nil {
			return deployer.Report{}, err
		}
		return a.deployer().DeployPolicy(ctx, policy)
	})
	return reports, errors.Join(listErr, err)
}

func (a *app) listCommand() *cobra.Command {
	listers := map[string]func() ([]string, error){
		"apis":      a.registry.APIIDs,
		"endpoints": a.registry.EndpointIDs,
		"models":    a.registry.ModelNames,
		"functions": a.registry.FunctionIDs,
		"roles":     a.registry.RoleIDs,
		"policies":  a.registry.PolicyIDs,
	}
	return &cobra.Command{
		Use:       "list apis|endpoints|models|functions|roles|policies",
		Short:     "List the entities declared in the project",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"apis", "endpoints", "models", "functions", "roles", "policies"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := listers[args[0]]()
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return err
		},
	}
}

// operationLabel is shown for reports without an operation.
func operationLabel(op domain.Operation) string {
	if op == "" {
		return "-"
	}
	return string(op)
}
