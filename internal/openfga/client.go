package openfga

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/freekieb7/playlog/internal/config"

	"github.com/openfga/go-sdk/client"
	"github.com/openfga/go-sdk/credentials"
)

// Client wraps the OpenFGA SDK client. A disabled client accepts every write
// and allows every check.
type Client struct {
	fga    *client.OpenFgaClient
	config config.OpenFGAConfig
	logger *slog.Logger
}

func NewClient(cfg config.OpenFGAConfig, logger *slog.Logger) (*Client, error) {
	if !cfg.Enabled {
		logger.Info("OpenFGA is disabled")
		return &Client{config: cfg, logger: logger}, nil
	}

	clientConfig := &client.ClientConfiguration{
		ApiUrl:               cfg.APIHost,
		StoreId:              cfg.StoreID,
		AuthorizationModelId: cfg.ModelID,
	}
	if cfg.APIToken != "" {
		clientConfig.Credentials = &credentials.Credentials{
			Method: credentials.CredentialsMethodApiToken,
			Config: &credentials.Config{
				ApiToken: cfg.APIToken,
			},
		}
	}

	fgaClient, err := client.NewSdkClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}

	logger.Info("OpenFGA client initialized", "store_id", cfg.StoreID, "model_id", cfg.ModelID)

	return &Client{
		fga:    fgaClient,
		config: cfg,
		logger: logger,
	}, nil
}

func (c *Client) IsEnabled() bool {
	return c.config.Enabled && c.fga != nil
}

// Check asks whether user holds relation on object.
func (c *Client) Check(ctx context.Context, user, relation, object string) (bool, error) {
	if !c.IsEnabled() {
		return true, nil
	}

	resp, err := c.fga.Check(ctx).Body(client.ClientCheckRequest{
		User:     user,
		Relation: relation,
		Object:   object,
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("openfga: check %s %s %s: %w", user, relation, object, err)
	}

	allowed := resp.GetAllowed()
	c.logger.DebugContext(ctx, "OpenFGA check completed", "user", user, "relation", relation, "object", object, "allowed", allowed)
	return allowed, nil
}

// Write applies tuple writes and deletes in one request.
func (c *Client) Write(ctx context.Context, writes, deletes []Tuple) error {
	if !c.IsEnabled() || (len(writes) == 0 && len(deletes) == 0) {
		return nil
	}

	body := client.ClientWriteRequest{}
	for _, t := range writes {
		body.Writes = append(body.Writes, client.ClientTupleKey{User: t.User, Relation: t.Relation, Object: t.Object})
	}
	for _, t := range deletes {
		body.Deletes = append(body.Deletes, client.ClientTupleKeyWithoutCondition{User: t.User, Relation: t.Relation, Object: t.Object})
	}

	if _, err := c.fga.Write(ctx).Body(body).Execute(); err != nil {
		return fmt.Errorf("openfga: write %d tuples, delete %d tuples: %w", len(writes), len(deletes), err)
	}

	c.logger.DebugContext(ctx, "OpenFGA tuples written", "writes", len(writes), "deletes", len(deletes))
	return nil
}

func (c *Client) CreateStore(ctx context.Context, name string) (string, error) {
	if c.fga == nil {
		return "", fmt.Errorf("openfga: client is disabled")
	}
	resp, err := c.fga.CreateStore(ctx).Body(client.ClientCreateStoreRequest{Name: name}).Execute()
	if err != nil {
		return "", fmt.Errorf("openfga: create store %s: %w", name, err)
	}
	return resp.GetId(), nil
}

// WriteAuthorizationModel uploads the playlog model and returns its id.
func (c *Client) WriteAuthorizationModel(ctx context.Context) (string, error) {
	if c.fga == nil {
		return "", fmt.Errorf("openfga: client is disabled")
	}

	var body client.ClientWriteAuthorizationModelRequest
	if err := json.Unmarshal(authorizationModel, &body); err != nil {
		return "", fmt.Errorf("openfga: decode authorization model: %w", err)
	}

	resp, err := c.fga.WriteAuthorizationModel(ctx).Body(body).Execute()
	if err != nil {
		return "", fmt.Errorf("openfga: write authorization model: %w", err)
	}
	return resp.GetAuthorizationModelId(), nil
}

// Exists reports whether exactly this tuple is stored, ignoring relations
// that are only implied by the model.
func (c *Client) Exists(ctx context.Context, t Tuple) (bool, error) {
	if !c.IsEnabled() {
		return false, nil
	}

	resp, err := c.fga.Read(ctx).Body(client.ClientReadRequest{
		User:     &t.User,
		Relation: &t.Relation,
		Object:   &t.Object,
	}).Execute()
	if err != nil {
		return false, fmt.Errorf("openfga: read %s %s %s: %w", t.User, t.Relation, t.Object, err)
	}
	return len(resp.GetTuples()) > 0, nil
}
