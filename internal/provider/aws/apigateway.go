package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigateway"
	"github.com/aws/aws-sdk-go-v2/service/apigateway/types"

	"github.com/animus-labs/apideploy/internal/provider"
)

// Gateway implements provider.Gateway on API Gateway REST APIs.
type Gateway struct {
	client *apigateway.Client
}

var _ provider.Gateway = (*Gateway)(nil)

func (g *Gateway) ListRestAPIs(ctx context.Context) ([]provider.RestAPI, error) {
	var apis []provider.RestAPI
	pages := apigateway.NewGetRestApisPaginator(g.client, &apigateway.GetRestApisInput{})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, classify("apigateway", "GetRestApis", err)
		}
		for _, item := range page.Items {
			apis = append(apis, fromRestAPI(item))
		}
	}
	return apis, nil
}

func (g *Gateway) ImportRestAPI(ctx context.Context, body []byte) (provider.RestAPI, error) {
	out, err := g.client.ImportRestApi(ctx, &apigateway.ImportRestApiInput{
		Body:           body,
		FailOnWarnings: true,
	})
	if err != nil {
		return provider.RestAPI{}, classify("apigateway", "ImportRestApi", err)
	}
	return provider.RestAPI{ID: str(out.Id), Name: str(out.Name), CreatedAt: sdkaws.ToTime(out.CreatedDate)}, nil
}

func (g *Gateway) PutRestAPI(ctx context.Context, id string, body []byte) (provider.RestAPI, error) {
	out, err := g.client.PutRestApi(ctx, &apigateway.PutRestApiInput{
		RestApiId:      sdkaws.String(id),
		Body:           body,
		Mode:           types.PutModeOverwrite,
		FailOnWarnings: true,
	})
	if err != nil {
		return provider.RestAPI{}, classify("apigateway", "PutRestApi", err)
	}
	return provider.RestAPI{ID: str(out.Id), Name: str(out.Name), CreatedAt: sdkaws.ToTime(out.CreatedDate)}, nil
}

func (g *Gateway) RenameRestAPI(ctx context.Context, id, name string) (provider.RestAPI, error) {
	out, err := g.client.UpdateRestApi(ctx, &apigateway.UpdateRestApiInput{
		RestApiId: sdkaws.String(id),
		PatchOperations: []types.PatchOperation{{
			Op:    types.OpReplace,
			Path:  sdkaws.String("/name"),
			Value: sdkaws.String(name),
		}},
	})
	if err != nil {
		return provider.RestAPI{}, classify("apigateway", "UpdateRestApi", err)
	}
	return provider.RestAPI{ID: str(out.Id), Name: str(out.Name), CreatedAt: sdkaws.ToTime(out.CreatedDate)}, nil
}

func (g *Gateway) CreateDeployment(ctx context.Context, id, stage, description string) (string, error) {
	out, err := g.client.CreateDeployment(ctx, &apigateway.CreateDeploymentInput{
		RestApiId:   sdkaws.String(id),
		StageName:   sdkaws.String(stage),
		Description: sdkaws.String(description),
	})
	if err != nil {
		return "", classify("apigateway", "CreateDeployment", err)
	}
	return str(out.Id), nil
}

func fromRestAPI(item types.RestApi) provider.RestAPI {
	return provider.RestAPI{ID: str(item.Id), Name: str(item.Name), CreatedAt: sdkaws.ToTime(item.CreatedDate)}
}
