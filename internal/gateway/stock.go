package gateway

import (
	"context"
	"net/http"
	"strings"

	"stock-sync-service/internal/domain"
)

const (
	pathSearchStockItems = "search-stock-items"
	pathSetStockLevel    = "set-stock-level"
	pathTransferStock    = "transfer-stock"
)

// StockLocationRef identifies a location inside a stock level row
type StockLocationRef struct {
	StockLocationID string `json:"StockLocationId"`
	LocationName    string `json:"LocationName"`
}

// StockLevel is one location's figures for a stock item
type StockLevel struct {
	Location     StockLocationRef `json:"Location"`
	StockLevel   int              `json:"StockLevel"`
	Available    int              `json:"Available"`
	Allocated    int              `json:"Allocated"`
	InOrderBook  int              `json:"InOrderBook"`
	MinimumLevel int              `json:"MinimumLevel"`
}

// StockItem is a product as returned by search-stock-items
type StockItem struct {
	StockItemID string       `json:"StockItemId"`
	SKU         string       `json:"SKU"`
	Title       string       `json:"ItemTitle"`
	StockLevels []StockLevel `json:"StockLevels"`
}

type searchStockItemsRequest struct {
	Keyword         string   `json:"keyword"`
	LocationIDs     []string `json:"locationIds,omitempty"`
	LoadStockLevels bool     `json:"loadStockLevels"`
}

// SearchStockItems reads inventory matching keyword, optionally restricted to locations
func (c *Client) SearchStockItems(ctx context.Context, keyword string, locationIDs []string) ([]StockItem, error) {
	var items []StockItem
	err := c.Request(ctx, http.MethodPost, pathSearchStockItems, searchStockItemsRequest{
		Keyword:         keyword,
		LocationIDs:     locationIDs,
		LoadStockLevels: true,
	}, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// StockByLocation returns a fresh per-location snapshot for the exact SKU
func (c *Client) StockByLocation(ctx context.Context, sku string) ([]domain.CandidateLocation, error) {
	items, err := c.SearchStockItems(ctx, sku, nil)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		if !strings.EqualFold(item.SKU, sku) {
			continue
		}
		candidates := make([]domain.CandidateLocation, 0, len(item.StockLevels))
		for _, level := range item.StockLevels {
			candidates = append(candidates, domain.CandidateLocation{
				ID:           level.Location.StockLocationID,
				Name:         level.Location.LocationName,
				StockLevel:   level.StockLevel,
				Available:    level.Available,
				Allocated:    level.Allocated,
				OnOrder:      level.InOrderBook,
				MinimumLevel: level.MinimumLevel,
			})
		}
		return candidates, nil
	}

	return nil, ErrProductNotFound
}

type setStockLevelRequest struct {
	SKU        string `json:"sku"`
	LocationID string `json:"locationId"`
	Level      int    `json:"level"`
}

// StockLevelChange is the echo of a set-stock-level call
type StockLevelChange struct {
	SKU        string `json:"SKU"`
	LocationID string `json:"LocationId"`
	StockLevel int    `json:"StockLevel"`
}

// SetStockLevel writes an absolute stock level for sku at locationID
func (c *Client) SetStockLevel(ctx context.Context, sku, locationID string, level int) (*StockLevelChange, error) {
	var change StockLevelChange
	err := c.Request(ctx, http.MethodPost, pathSetStockLevel, setStockLevelRequest{
		SKU:        sku,
		LocationID: locationID,
		Level:      level,
	}, &change)
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// TransferStockRequest moves quantity of sku between two locations.
// An empty ToLocationID means the default location.
type TransferStockRequest struct {
	SKU            string `json:"sku"`
	FromLocationID string `json:"fromLocationId"`
	Quantity       int    `json:"quantity"`
	ToLocationID   string `json:"toLocationId,omitempty"`
}

// TransferStockResponse is the echo of a transfer-stock call
type TransferStockResponse struct {
	TransferID      string `json:"TransferId"`
	FromStockLevel  int    `json:"FromStockLevel"`
	ToStockLevel    int    `json:"ToStockLevel"`
	QuantityApplied int    `json:"Quantity"`
}

// TransferStock moves stock between locations in the external system
func (c *Client) TransferStock(ctx context.Context, req TransferStockRequest) (*TransferStockResponse, error) {
	var resp TransferStockResponse
	if err := c.Request(ctx, http.MethodPost, pathTransferStock, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
