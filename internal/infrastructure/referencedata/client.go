// Package referencedata implements the reference-data collaborator
// contracts over its HTTP API. The service is external; every lookup here
// is a network call authenticated with a short-lived service token.
package referencedata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"medstock/internal/core/apperror"
	"medstock/internal/core/id"
	"medstock/internal/domain/refdata"
)

const defaultRequestTimeout = 5 * time.Second

// Config holds client configuration.
type Config struct {
	// BaseURL of the reference-data service, e.g. http://referencedata:8080/api.
	BaseURL string

	// ServiceSecret signs the HS256 service token.
	ServiceSecret string

	// RequestTimeout bounds each request (default 5s).
	RequestTimeout time.Duration
}

// Client is the HTTP implementation of refdata.Lookup and
// refdata.PermissionCheck.
//
// A missing entity (404) is reported as nil, never as an error; transport
// and server failures map to retryable LOOKUP_FAILURE errors.
type Client struct {
	baseURL string
	secret  []byte
	http    *http.Client
}

// NewClient creates a reference-data client.
func NewClient(cfg Config) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  []byte(cfg.ServiceSecret),
		http:    &http.Client{Timeout: timeout},
	}
}

var (
	_ refdata.Lookup          = (*Client)(nil)
	_ refdata.PermissionCheck = (*Client)(nil)
)

// serviceToken mints a short-lived HS256 token identifying this service.
func (c *Client) serviceToken() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": "medstock",
		"iat": now.Unix(),
		"exp": now.Add(time.Minute).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// get performs an authenticated GET and decodes the body into out.
// Returns (false, nil) on 404.
func (c *Client) get(ctx context.Context, resource, path string, query url.Values, out any) (bool, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, apperror.NewLookupFailure(resource, err)
	}

	token, err := c.serviceToken()
	if err != nil {
		return false, apperror.NewLookupFailure(resource, fmt.Errorf("sign service token: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, apperror.NewLookupFailure(resource, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, apperror.NewLookupFailure(resource,
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, apperror.NewLookupFailure(resource, fmt.Errorf("decode response: %w", err))
	}
	return true, nil
}

// FindProgram resolves a program by id, nil when absent.
func (c *Client) FindProgram(ctx context.Context, programID id.ID) (*refdata.Program, error) {
	var program refdata.Program
	found, err := c.get(ctx, "program", "/programs/"+programID.String(), nil, &program)
	if err != nil || !found {
		return nil, err
	}
	return &program, nil
}

// FindFacility resolves a facility by id, nil when absent.
func (c *Client) FindFacility(ctx context.Context, facilityID id.ID) (*refdata.Facility, error) {
	var facility refdata.Facility
	found, err := c.get(ctx, "facility", "/facilities/"+facilityID.String(), nil, &facility)
	if err != nil || !found {
		return nil, err
	}
	return &facility, nil
}

// FindApprovedProducts returns the approved product list for the pair.
func (c *Client) FindApprovedProducts(ctx context.Context, programID, facilityID id.ID) ([]refdata.ApprovedProduct, error) {
	query := url.Values{"programId": {programID.String()}}
	var products []refdata.ApprovedProduct
	_, err := c.get(ctx, "approvedProducts",
		"/facilities/"+facilityID.String()+"/approvedProducts", query, &products)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// FindLots resolves lots by id in one batched request.
func (c *Client) FindLots(ctx context.Context, lotIDs []id.ID) ([]refdata.Lot, error) {
	if len(lotIDs) == 0 {
		return nil, nil
	}
	query := url.Values{}
	for _, lotID := range lotIDs {
		query.Add("id", lotID.String())
	}
	var lots []refdata.Lot
	if _, err := c.get(ctx, "lots", "/lots", query, &lots); err != nil {
		return nil, err
	}
	return lots, nil
}

// FindOrderableUnit resolves a unit of orderable, nil when absent.
func (c *Client) FindOrderableUnit(ctx context.Context, unitID id.ID) (*refdata.OrderableUnit, error) {
	var unit refdata.OrderableUnit
	found, err := c.get(ctx, "orderableUnit", "/orderableUnits/"+unitID.String(), nil, &unit)
	if err != nil || !found {
		return nil, err
	}
	return &unit, nil
}

// FindKitConstituents returns the kit recipe, empty for non-kits.
func (c *Client) FindKitConstituents(ctx context.Context, kitOrderableID id.ID) ([]refdata.KitConstituent, error) {
	var constituents []refdata.KitConstituent
	_, err := c.get(ctx, "kitConstituents",
		"/orderables/"+kitOrderableID.String()+"/constituents", nil, &constituents)
	if err != nil {
		return nil, err
	}
	return constituents, nil
}

// FindRight resolves a right by name, nil when absent.
func (c *Client) FindRight(ctx context.Context, name string) (*refdata.Right, error) {
	query := url.Values{"name": {name}}
	var rights []refdata.Right
	if _, err := c.get(ctx, "right", "/rights/search", query, &rights); err != nil {
		return nil, err
	}
	if len(rights) == 0 {
		return nil, nil
	}
	return &rights[0], nil
}

// FindSupervisoryNode resolves the supervisory node over the facility for
// the program, nil when the facility is unsupervised.
func (c *Client) FindSupervisoryNode(ctx context.Context, programID, facilityID id.ID) (*refdata.SupervisoryNode, error) {
	query := url.Values{
		"programId":  {programID.String()},
		"facilityId": {facilityID.String()},
	}
	var nodes []refdata.SupervisoryNode
	if _, err := c.get(ctx, "supervisoryNode", "/supervisoryNodes/search", query, &nodes); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return &nodes[0], nil
}

// FindUsersWithRight returns users holding the right for the node and
// program.
func (c *Client) FindUsersWithRight(ctx context.Context, nodeID, rightID, programID id.ID) ([]refdata.User, error) {
	query := url.Values{
		"rightId":   {rightID.String()},
		"programId": {programID.String()},
	}
	var users []refdata.User
	_, err := c.get(ctx, "users",
		"/supervisoryNodes/"+nodeID.String()+"/supervisingUsers", query, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// permissionResult is the permission check response body.
type permissionResult struct {
	Allowed bool   `json:"allowed"`
	Missing string `json:"missingPermission,omitempty"`
}

// CanSubmitEvent verifies the user holds the stock-cards-edit right for
// the program and facility. Denial is FORBIDDEN, not a lookup failure.
func (c *Client) CanSubmitEvent(ctx context.Context, userID, programID, facilityID id.ID) error {
	query := url.Values{
		"right":      {refdata.RightStockCardsEdit},
		"programId":  {programID.String()},
		"facilityId": {facilityID.String()},
	}
	var result permissionResult
	found, err := c.get(ctx, "permission",
		"/users/"+userID.String()+"/permissions/check", query, &result)
	if err != nil {
		return err
	}
	if !found {
		return apperror.NewForbidden("user not found").
			WithDetail("userId", userID)
	}
	if !result.Allowed {
		return apperror.NewForbidden("missing right to submit stock events").
			WithDetail("right", refdata.RightStockCardsEdit).
			WithDetail("programId", programID).
			WithDetail("facilityId", facilityID)
	}
	return nil
}
