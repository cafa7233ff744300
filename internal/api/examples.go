package api

type exampleGroup struct {
	Category string   `json:"category"`
	Queries  []string `json:"queries"`
}

var exampleQueries = []exampleGroup{
	{
		Category: "Gas Analysis",
		Queries: []string{
			"What was my total gas spend in the last 10 transactions for 0x49f51e3C94B459677c3B1e611DB3E44d4E6b1D55?",
			"Show me the gas fees for the last 5 transactions on Optimism",
			"What was the average gas price in my recent transactions?",
		},
	},
	{
		Category: "Transaction Queries",
		Queries: []string{
			"What is the last transaction for 0x49f51e3C94B459677c3B1e611DB3E44d4E6b1D55?",
			"Show me recent transactions for vitalik.eth",
			"Get the last 20 transactions and show me which ones were contract interactions",
		},
	},
	{
		Category: "Token Analysis",
		Queries: []string{
			"What is the total supply of this token: 0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984?",
			"How many tokens does the creator hold?",
			"Is this token safe to interact with?",
		},
	},
	{
		Category: "Contract Safety",
		Queries: []string{
			"Analyze the transaction pattern of this contract and tell me if it's safe",
			"Is this contract verified? What does it do?",
			"What are the security risks of this contract?",
		},
	},
	{
		Category: "Multi-Chain",
		Queries: []string{
			"Show me my activity across all chains",
			"Where does this address have the most transactions?",
			"Compare my holdings on Ethereum vs Optimism",
		},
	},
}
