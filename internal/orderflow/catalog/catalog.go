package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"orderflow/internal/common/catalogprotocol"
	"orderflow/pkg/logging"
	"orderflow/pkg/resilience"
)

var (
	ErrProductNotFound = errors.New("no product found")
)

type Config struct {
	ServerAddress string
}

// Client talks to the product catalog. Transport failures and 5xx responses
// are marked transient so the resilience layer retries them; a 404 is final.
type Client struct {
	client *resty.Client
	logger *logging.ZapLogger
	cfg    Config
}

func NewClient(cfg Config, logger *logging.ZapLogger) *Client {
	return &Client{
		client: resty.New(),
		cfg:    cfg,
		logger: logger,
	}
}

func (c *Client) Product(ctx context.Context, productID string) (catalogprotocol.Product, error) {
	url := c.cfg.ServerAddress + "/products/{productId}"
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("productId", productID).
		Get(url)
	if err != nil {
		return catalogprotocol.Product{}, resilience.Transient(fmt.Errorf("get request failed: %w", err))
	}
	switch statusCode := resp.StatusCode(); {
	case statusCode == http.StatusNotFound:
		c.logger.DebugCtx(ctx, "product not found", zap.String("productId", productID))
		return catalogprotocol.Product{}, ErrProductNotFound
	case statusCode == http.StatusOK:
		var res catalogprotocol.Product
		if err := json.Unmarshal(resp.Body(), &res); err != nil {
			return catalogprotocol.Product{}, fmt.Errorf("error unmarshalling product response: %w", err)
		}
		return res, nil
	case statusCode >= http.StatusInternalServerError:
		return catalogprotocol.Product{}, resilience.Transient(fmt.Errorf("catalog returned status %v", statusCode))
	default:
		return catalogprotocol.Product{}, fmt.Errorf("unexpected status code %v", statusCode)
	}
}

func (c *Client) Products(ctx context.Context) ([]catalogprotocol.Product, error) {
	url := c.cfg.ServerAddress + "/products"
	resp, err := c.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, resilience.Transient(fmt.Errorf("get request failed: %w", err))
	}
	switch statusCode := resp.StatusCode(); {
	case statusCode == http.StatusOK:
		var res []catalogprotocol.Product
		if err := json.Unmarshal(resp.Body(), &res); err != nil {
			return nil, fmt.Errorf("error unmarshalling products response: %w", err)
		}
		return res, nil
	case statusCode >= http.StatusInternalServerError:
		return nil, resilience.Transient(fmt.Errorf("catalog returned status %v", statusCode))
	default:
		return nil, fmt.Errorf("unexpected status code %v", statusCode)
	}
}
