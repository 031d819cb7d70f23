// Package vbot provides an embeddable usage accounting ledger and budget
// gate for chat bots fronting hosted model APIs.
//
// Every billable action (chat tokens, transcribed audio seconds, generated
// images) is priced and recorded into a per-identity ledger with daily,
// monthly and all-time aggregates. A budget gate checks spending against
// configured allowances before the bot forwards a request upstream.
//
//	client, _ := vbot.New(ctx,
//	    vbot.WithFileStorage("data"),
//	    vbot.WithPolicy(vbot.Policy{
//	        Period:     vbot.PeriodDay,
//	        Allowed:    []string{"42"},
//	        Allowances: []float64{10},
//	    }),
//	)
//	defer client.Close()
//
//	caller := vbot.Caller{Identity: "42", DisplayName: "john_doe"}
//	if ok, _ := client.IsWithinBudget(ctx, caller); ok {
//	    receipt, _ := client.RecordChat(ctx, caller, 1500)
//	    fmt.Printf("billed $%.6f, $%.2f left\n", receipt.Cost, receipt.Remaining)
//	}
//
// Ledgers persist either as one JSON file per identity (WithFileStorage)
// or as records in Redis (WithRedis).
package vbot
