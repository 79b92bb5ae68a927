package deployer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"

	"github.com/animus-labs/apideploy/internal/domain"
	"github.com/animus-labs/apideploy/internal/provider"
)

// DeployFunction creates or updates fn, publishes a version and points the
// stage alias at it. The report ARN is the alias ARN when a stage is set.
func (d *Deployer) DeployFunction(ctx context.Context, fn domain.Function) (report Report, err error) {
	name := d.dctx.DeployedName(fn.ID)
	report = Report{Kind: KindFunction, ID: fn.ID, Name: name}
	defer func() { d.record(report, err) }()

	roleARN, err := d.RoleResolver().Resolve(ctx, fn.Config.Role, d.dctx)
	if err != nil {
		return report, fmt.Errorf("function %s: %w", fn.ID, err)
	}
	code, err := d.code(ctx, fn)
	if err != nil {
		return report, err
	}
	spec := provider.FunctionSpec{
		Name:        name,
		Runtime:     fn.Config.Runtime,
		Handler:     fn.Config.Handler,
		RoleARN:     roleARN,
		Description: fn.Config.Description,
		Timeout:     fn.Config.Timeout,
		MemorySize:  fn.Config.MemorySize,
		Environment: fn.Config.Environment,
		Code:        code,
	}

	_, err = d.functions.GetFunction(ctx, name)
	switch {
	case provider.IsNotFound(err):
		report.Operation, err = d.createFunction(ctx, spec)
	case err != nil:
		return report, fmt.Errorf("get function %s: %w", name, err)
	default:
		report.Operation, err = d.updateFunction(ctx, spec)
	}
	if err != nil {
		return report, err
	}

	version, err := d.functions.PublishVersion(ctx, name, "apideploy "+d.dctx.Environment+" "+fn.ID)
	if err != nil {
		return report, fmt.Errorf("publish version of %s: %w", name, err)
	}
	report.Version = version.Version

	if d.dctx.Stage == "" {
		live, err := d.functions.GetFunction(ctx, name)
		if err != nil {
			return report, fmt.Errorf("get function %s: %w", name, err)
		}
		report.ARN = live.ARN
		return report, nil
	}
	alias, err := d.pointAlias(ctx, provider.Alias{FunctionName: name, Name: d.dctx.Stage, Version: version.Version})
	if err != nil {
		return report, err
	}
	report.ARN = alias.ARN
	return report, nil
}

func (d *Deployer) createFunction(ctx context.Context, spec provider.FunctionSpec) (domain.Operation, error) {
	_, err := d.functions.CreateFunction(ctx, spec)
	if err == nil {
		return domain.OperationCreation, nil
	}
	if !provider.IsAlreadyExists(err) {
		return "", fmt.Errorf("create function %s: %w", spec.Name, err)
	}
	return d.updateFunction(ctx, spec)
}

func (d *Deployer) updateFunction(ctx context.Context, spec provider.FunctionSpec) (domain.Operation, error) {
	_, err := d.functions.UpdateFunctionCode(ctx, spec.Name, spec.Code)
	if provider.IsNotFound(err) {
		if _, err := d.functions.CreateFunction(ctx, spec); err != nil {
			return "", fmt.Errorf("create function %s: %w", spec.Name, err)
		}
		return domain.OperationCreation, nil
	}
	if err != nil {
		return "", fmt.Errorf("update code of %s: %w", spec.Name, err)
	}
	if _, err := d.functions.UpdateFunctionConfiguration(ctx, spec); err != nil {
		return "", fmt.Errorf("update configuration of %s: %w", spec.Name, err)
	}
	return domain.OperationUpdate, nil
}

func (d *Deployer) pointAlias(ctx context.Context, alias provider.Alias) (provider.Alias, error) {
	_, err := d.functions.GetAlias(ctx, alias.FunctionName, alias.Name)
	switch {
	case provider.IsNotFound(err):
		created, err := d.functions.CreateAlias(ctx, alias)
		if provider.IsAlreadyExists(err) {
			return d.updateAlias(ctx, alias)
		}
		if err != nil {
			return provider.Alias{}, fmt.Errorf("create alias %s:%s: %w", alias.FunctionName, alias.Name, err)
		}
		return created, nil
	case err != nil:
		return provider.Alias{}, fmt.Errorf("get alias %s:%s: %w", alias.FunctionName, alias.Name, err)
	}
	updated, err := d.updateAlias(ctx, alias)
	if provider.IsNotFound(err) {
		created, err := d.functions.CreateAlias(ctx, alias)
		if err != nil {
			return provider.Alias{}, fmt.Errorf("create alias %s:%s: %w", alias.FunctionName, alias.Name, err)
		}
		return created, nil
	}
	return updated, err
}

func (d *Deployer) updateAlias(ctx context.Context, alias provider.Alias) (provider.Alias, error) {
	updated, err := d.functions.UpdateAlias(ctx, alias)
	if err != nil {
		return provider.Alias{}, fmt.Errorf("update alias %s:%s: %w", alias.FunctionName, alias.Name, err)
	}
	return updated, nil
}

// code reads the archive of fn and, when an artifact store is configured,
// uploads it under a content-addressed key.
func (d *Deployer) code(ctx context.Context, fn domain.Function) (provider.FunctionCode, error) {
	archive, err := os.ReadFile(fn.ArtifactPath())
	if err != nil {
		return provider.FunctionCode{}, fmt.Errorf("read artifact of %s: %w", fn.ID, err)
	}
	if d.artifacts == nil {
		return provider.FunctionCode{ZipFile: archive}, nil
	}
	sum := sha256.Sum256(archive)
	key := path.Join(d.dctx.Environment, fn.ID, hex.EncodeToString(sum[:])+".zip")
	bucket, err := d.artifacts.PutArtifact(ctx, key, archive)
	if err != nil {
		return provider.FunctionCode{}, fmt.Errorf("upload artifact of %s: %w", fn.ID, err)
	}
	return provider.FunctionCode{S3Bucket: bucket, S3Key: key}, nil
}
