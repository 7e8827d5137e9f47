package rest

type GetValidatorsResponse struct {
	Validators []Validator `json:"validators"`
	Pagination Pagination  `json:"pagination"`
}

type Validator struct {
	OperatorAddress string      `json:"operator_address"`
	ConsensusPubkey PubKey      `json:"consensus_pubkey"`
	Jailed          bool        `json:"jailed"`
	Status          string      `json:"status"`
	Tokens          string      `json:"tokens"`
	Description     Description `json:"description"`
}

type PubKey struct {
	Type string `json:"@type"`
	Key  string `json:"key"`
}

type Description struct {
	Moniker string `json:"moniker"`
}

type Pagination struct {
	NextKey string `json:"next_key"`
	Total   string `json:"total"`
}
