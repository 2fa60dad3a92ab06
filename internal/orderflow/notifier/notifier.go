package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"orderflow/internal/common/notifyprotocol"
	"orderflow/pkg/logging"
	"orderflow/pkg/resilience"
)

var (
	ErrOrderUnknown = errors.New("order unknown to the notification target")
)

type Config struct {
	ServerAddress string
}

// Client delivers calculated orders to the notification target. Delivery is
// at-least-once; the target is expected to deduplicate by order number.
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

func (c *Client) NotifyOrder(ctx context.Context, order notifyprotocol.Order) error {
	url := c.cfg.ServerAddress + "/orders"
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(order).
		Post(url)
	if err != nil {
		return resilience.Transient(fmt.Errorf("post request failed: %w", err))
	}
	switch statusCode := resp.StatusCode(); {
	case statusCode == http.StatusOK || statusCode == http.StatusCreated || statusCode == http.StatusAccepted:
		c.logger.DebugCtx(ctx, "order notified", zap.String("orderNumber", order.OrderNumber))
		return nil
	case statusCode >= http.StatusInternalServerError:
		return resilience.Transient(fmt.Errorf("notification target returned status %v", statusCode))
	default:
		return fmt.Errorf("unexpected status code %v", statusCode)
	}
}

func (c *Client) OrderStatus(ctx context.Context, orderNumber string) (string, error) {
	url := c.cfg.ServerAddress + "/orders/{orderNumber}"
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("orderNumber", orderNumber).
		Get(url)
	if err != nil {
		return "", resilience.Transient(fmt.Errorf("get request failed: %w", err))
	}
	switch statusCode := resp.StatusCode(); {
	case statusCode == http.StatusNotFound:
		return "", ErrOrderUnknown
	case statusCode == http.StatusOK:
		return string(resp.Body()), nil
	case statusCode >= http.StatusInternalServerError:
		return "", resilience.Transient(fmt.Errorf("notification target returned status %v", statusCode))
	default:
		return "", fmt.Errorf("unexpected status code %v", statusCode)
	}
}
