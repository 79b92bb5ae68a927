package aws

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"

	"github.com/animus-labs/apideploy/internal/provider"
)

// Functions implements provider.Functions on Lambda.
type Functions struct {
	client    *lambda.Client
	waitLimit time.Duration
}

var _ provider.Functions = (*Functions)(nil)

func (f *Functions) GetFunction(ctx context.Context, name string) (provider.Function, error) {
	out, err := f.client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: sdkaws.String(name)})
	if err != nil {
		return provider.Function{}, classify("lambda", "GetFunction", err)
	}
	return fromConfiguration(out.Configuration), nil
}

func (f *Functions) ListFunctions(ctx context.Context) ([]provider.Function, error) {
	var functions []provider.Function
	pages := lambda.NewListFunctionsPaginator(f.client, &lambda.ListFunctionsInput{})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("lambda", "ListFunctions", err)
		}
		for i := range page.Functions {
			functions = append(functions, fromConfiguration(&page.Functions[i]))
		}
	}
	return functions, nil
}

func (f *Functions) CreateFunction(ctx context.Context, spec provider.FunctionSpec) (provider.Function, error) {
	out, err := f.client.CreateFunction(ctx, &lambda.CreateFunctionInput{
		FunctionName: sdkaws.String(spec.Name),
		Role:         sdkaws.String(spec.RoleARN),
		Runtime:      types.Runtime(spec.Runtime),
		Handler:      sdkaws.String(spec.Handler),
		Description:  sdkaws.String(spec.Description),
		Timeout:      sdkaws.Int32(spec.Timeout),
		MemorySize:   sdkaws.Int32(spec.MemorySize),
		Environment:  &types.Environment{Variables: spec.Environment},
		Code:         functionCode(spec.Code),
	})
	if err != nil {
		return provider.Function{}, classify("lambda", "CreateFunction", err)
	}
	if err := f.waitActive(ctx, spec.Name); err != nil {
		return provider.Function{}, err
	}
	return provider.Function{Name: str(out.FunctionName), ARN: str(out.FunctionArn), Version: str(out.Version)}, nil
}

func (f *Functions) UpdateFunctionCode(ctx context.Context, name string, code provider.FunctionCode) (provider.Function, error) {
	in := &lambda.UpdateFunctionCodeInput{FunctionName: sdkaws.String(name)}
	if len(code.ZipFile) > 0 {
		in.ZipFile = code.ZipFile
	} else {
		in.S3Bucket = sdkaws.String(code.S3Bucket)
		in.S3Key = sdkaws.String(code.S3Key)
	}
	out, err := f.client.UpdateFunctionCode(ctx, in)
	if err != nil {
		return provider.Function{}, classify("lambda", "UpdateFunctionCode", err)
	}
	if err := f.waitUpdated(ctx, name); err != nil {
		return provider.Function{}, err
	}
	return provider.Function{Name: str(out.FunctionName), ARN: str(out.FunctionArn), Version: str(out.Version)}, nil
}

func (f *Functions) UpdateFunctionConfiguration(ctx context.Context, spec provider.FunctionSpec) (provider.Function, error) {
	out, err := f.client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: sdkaws.String(spec.Name),
		Role:         sdkaws.String(spec.RoleARN),
		Runtime:      types.Runtime(spec.Runtime),
		Handler:      sdkaws.String(spec.Handler),
		Description:  sdkaws.String(spec.Description),
		Timeout:      sdkaws.Int32(spec.Timeout),
		MemorySize:   sdkaws.Int32(spec.MemorySize),
		Environment:  &types.Environment{Variables: spec.Environment},
	})
	if err != nil {
		return provider.Function{}, classify("lambda", "UpdateFunctionConfiguration", err)
	}
	if err := f.waitUpdated(ctx, spec.Name); err != nil {
		return provider.Function{}, err
	}
	return provider.Function{Name: str(out.FunctionName), ARN: str(out.FunctionArn), Version: str(out.Version)}, nil
}

func (f *Functions) PublishVersion(ctx context.Context, name, description string) (provider.Function, error) {
	out, err := f.client.PublishVersion(ctx, &lambda.PublishVersionInput{
		FunctionName: sdkaws.String(name),
		Description:  sdkaws.String(description),
	})
	if err != nil {
		return provider.Function{}, classify("lambda", "PublishVersion", err)
	}
	return provider.Function{Name: str(out.FunctionName), ARN: str(out.FunctionArn), Version: str(out.Version)}, nil
}

func (f *Functions) GetAlias(ctx context.Context, functionName, alias string) (provider.Alias, error) {
	out, err := f.client.GetAlias(ctx, &lambda.GetAliasInput{
		FunctionName: sdkaws.String(functionName),
		Name:         sdkaws.String(alias),
	})
	if err != nil {
		return provider.Alias{}, classify("lambda", "GetAlias", err)
	}
	return provider.Alias{FunctionName: functionName, Name: str(out.Name), Version: str(out.FunctionVersion), ARN: str(out.AliasArn)}, nil
}

func (f *Functions) CreateAlias(ctx context.Context, alias provider.Alias) (provider.Alias, error) {
	out, err := f.client.CreateAlias(ctx, &lambda.CreateAliasInput{
		FunctionName:    sdkaws.String(alias.FunctionName),
		Name:            sdkaws.String(alias.Name),
		FunctionVersion: sdkaws.String(alias.Version),
	})
	if err != nil {
		return provider.Alias{}, classify("lambda", "CreateAlias", err)
	}
	return provider.Alias{FunctionName: alias.FunctionName, Name: str(out.Name), Version: str(out.FunctionVersion), ARN: str(out.AliasArn)}, nil
}

func (f *Functions) UpdateAlias(ctx context.Context, alias provider.Alias) (provider.Alias, error) {
	out, err := f.client.UpdateAlias(ctx, &lambda.UpdateAliasInput{
		FunctionName:    sdkaws.String(alias.FunctionName),
		Name:            sdkaws.String(alias.Name),
		FunctionVersion: sdkaws.String(alias.Version),
	})
	if err != nil {
		return provider.Alias{}, classify("lambda", "UpdateAlias", err)
	}
	return provider.Alias{FunctionName: alias.FunctionName, Name: str(out.Name), Version: str(out.FunctionVersion), ARN: str(out.AliasArn)}, nil
}

// waitUpdated blocks until the last update of name has been applied. Lambda
// rejects further updates while one is in progress.
func (f *Functions) waitUpdated(ctx context.Context, name string) error {
	waiter := lambda.NewFunctionUpdatedV2Waiter(f.client)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: sdkaws.String(name)}, f.waitLimit); err != nil {
		return classify("lambda", "WaitFunctionUpdated", err)
	}
	return nil
}

func (f *Functions) waitActive(ctx context.Context, name string) error {
	waiter := lambda.NewFunctionActiveV2Waiter(f.client)
	if err := waiter.Wait(ctx, &lambda.GetFunctionInput{FunctionName: sdkaws.String(name)}, f.waitLimit); err != nil {
		return classify("lambda", "WaitFunctionActive", err)
	}
	return nil
}

func functionCode(code provider.FunctionCode) *types.FunctionCode {
	if len(code.ZipFile) > 0 {
		return &types.FunctionCode{ZipFile: code.ZipFile}
	}
	return &types.FunctionCode{S3Bucket: sdkaws.String(code.S3Bucket), S3Key: sdkaws.String(code.S3Key)}
}

func fromConfiguration(c *types.FunctionConfiguration) provider.Function {
	if c == nil {
		return provider.Function{}
	}
	return provider.Function{Name: str(c.FunctionName), ARN: str(c.FunctionArn), Version: str(c.Version)}
}
