package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	BondStatusBonded    = "BOND_STATUS_BONDED"
	BondStatusUnbonding = "BOND_STATUS_UNBONDING"
	BondStatusUnbonded  = "BOND_STATUS_UNBONDED"

	validatorsPageLimit = 200
)

var apiEndpoints = map[string]string{
	"validators_endpoint": "/cosmos/staking/v1beta1/validators",
}

func GetEndpoint(key string) string {
	return apiEndpoints[key]
}

// GetValidators pages through the staking module's validator list. An empty status lists every validator.
func GetValidators(ctx context.Context, client *http.Client, host string, status string) (result GetValidatorsResponse, err error) {
	result, err = getValidators(ctx, client, host, status, "")
	if err != nil {
		return
	}
	allResults := result
	for result.Pagination.NextKey != "" {
		result, err = getValidators(ctx, client, host, status, result.Pagination.NextKey)
		if err != nil {
			return
		}
		allResults.Validators = append(allResults.Validators, result.Validators...)
	}
	result = allResults
	return
}

func getValidators(ctx context.Context, client *http.Client, host string, status string, paginationKey string) (result GetValidatorsResponse, err error) {
	requestEndpoint := apiEndpoints["validators_endpoint"]

	params := url.Values{}
	params.Set("pagination.limit", fmt.Sprint(validatorsPageLimit))
	if status != "" {
		params.Set("status", status)
	}
	if paginationKey != "" {
		params.Set("pagination.key", paginationKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s%s?%s", host, requestEndpoint, params.Encode()), nil)
	if err != nil {
		return result, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return result, err
	}

	defer resp.Body.Close()

	err = checkResponseErrorCode(requestEndpoint, resp)
	if err != nil {
		return result, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return result, err
	}

	err = json.Unmarshal(body, &result)
	if err != nil {
		return result, err
	}

	return result, nil
}

func checkResponseErrorCode(requestEndpoint string, resp *http.Response) error {
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error getting response for endpoint %s: Status %s Body %s", requestEndpoint, resp.Status, body)
	}

	return nil
}
