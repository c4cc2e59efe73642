// Package metadata discovers the collection assets held by a wallet through the
// Digital Asset Standard (DAS) read API, with images from the off-chain JSON.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/core-coin/praemium/internal/models"
	"github.com/core-coin/praemium/pkg/logger"
)

const (
	pageLimit = 1000
	// maxConcurrent limits concurrent off-chain JSON requests
	maxConcurrent = 20
	// maxErrorBody caps how much of a failed response ends up in the error
	maxErrorBody = 1 << 10
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type assetsByOwnerParams struct {
	OwnerAddress string `json:"ownerAddress"`
	Page         int    `json:"page"`
	Limit        int    `json:"limit"`
}

// AssetsPage is one page of a getAssetsByOwner response.
type AssetsPage struct {
	Total int         `json:"total"`
	Limit int         `json:"limit"`
	Page  int         `json:"page"`
	Items []*DASAsset `json:"items"`
}

// DASAsset is the subset of a DAS asset the service reads.
type DASAsset struct {
	ID      string `json:"id"`
	Content struct {
		JSONURI  string `json:"json_uri"`
		Metadata struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"metadata"`
		Links struct {
			Image string `json:"image"`
		} `json:"links"`
	} `json:"content"`
	Grouping []struct {
		GroupKey   string `json:"group_key"`
		GroupValue string `json:"group_value"`
	} `json:"grouping"`
	Ownership struct {
		Frozen bool   `json:"frozen"`
		Owner  string `json:"owner"`
	} `json:"ownership"`
	Burnt bool `json:"burnt"`
}

// InCollection reports whether the asset is grouped under collection.
func (a *DASAsset) InCollection(collection string) bool {
	for _, g := range a.Grouping {
		if g.GroupKey == "collection" && g.GroupValue == collection {
			return true
		}
	}
	return false
}

// OffChainMetadata is the JSON document behind an asset's URI.
type OffChainMetadata struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Image  string `json:"image"`
}

// Service fetches the collection assets owned by a wallet.
type Service struct {
	logger     *logger.Logger
	dasURL     string
	collection string
	client     *http.Client

	// Images by metadata URI
	imageCache map[string]string
	cacheMutex sync.RWMutex
}

func NewService(dasURL, collection string, logger *logger.Logger) *Service {
	return &Service{
		logger:     logger,
		dasURL:     dasURL,
		collection: collection,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		imageCache: make(map[string]string),
	}
}

// FetchOwnedAssets returns the collection assets owner currently holds.
func (s *Service) FetchOwnedAssets(ctx context.Context, owner string) ([]*models.OnChainAsset, error) {
	items, err := s.fetchAllAssets(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assets of %s: %w", owner, err)
	}

	assets := make([]*models.OnChainAsset, 0, len(items))
	for _, item := range items {
		if item.Burnt || !item.InCollection(s.collection) {
			continue
		}
		assets = append(assets, &models.OnChainAsset{
			Mint:   item.ID,
			Name:   item.Content.Metadata.Name,
			Symbol: item.Content.Metadata.Symbol,
			URI:    item.Content.JSONURI,
			Image:  item.Content.Links.Image,
			Frozen: item.Ownership.Frozen,
		})
	}

	if err := s.resolveImages(ctx, assets); err != nil {
		return nil, err
	}
	s.logger.Debugw("Fetched owned assets", "owner", owner, "assets", len(assets), "scanned", len(items))
	return assets, nil
}

// fetchAllAssets pages through getAssetsByOwner until a short page.
func (s *Service) fetchAllAssets(ctx context.Context, owner string) ([]*DASAsset, error) {
	var all []*DASAsset
	for page := 1; ; page++ {
		result, err := s.fetchPage(ctx, owner, page)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Items...)
		if len(result.Items) < pageLimit {
			break
		}
	}
	return all, nil
}

func (s *Service) fetchPage(ctx context.Context, owner string, page int) (*AssetsPage, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "praemium",
		Method:  "getAssetsByOwner",
		Params:  assetsByOwnerParams{OwnerAddress: owner, Page: page, Limit: pageLimit},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.dasURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assets page %d: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Result *AssetsPage `json:"result"`
		Error  *rpcError   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode assets response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("getAssetsByOwner error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		return nil, fmt.Errorf("getAssetsByOwner returned no result")
	}
	return out.Result, nil
}

// resolveImages fills missing images from the off-chain JSON, concurrently.
// An unreachable document leaves the image empty.
func (s *Service) resolveImages(ctx context.Context, assets []*models.OnChainAsset) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for _, asset := range assets {
		asset := asset
		if asset.Image != "" || asset.URI == "" {
			continue
		}
		if image, ok := s.cachedImage(asset.URI); ok {
			asset.Image = image
			continue
		}

		g.Go(func() error {
			meta, err := s.fetchOffChainMetadata(ctx, asset.URI)
			if err != nil {
				s.logger.Warnw("Failed to fetch asset metadata", "mint", asset.Mint, "uri", asset.URI, "error", err)
				return nil
			}
			asset.Image = meta.Image
			s.cacheMutex.Lock()
			s.imageCache[asset.URI] = meta.Image
			s.cacheMutex.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) cachedImage(uri string) (string, bool) {
	s.cacheMutex.RLock()
	defer s.cacheMutex.RUnlock()
	image, ok := s.imageCache[uri]
	return image, ok
}

func (s *Service) fetchOffChainMetadata(ctx context.Context, uri string) (*OffChainMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var meta OffChainMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	return &meta, nil
}
