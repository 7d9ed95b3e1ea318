package main

import (
	"fmt"
	"io"

	"github.com/mr-tron/base58"

	"github.com/Solana-ZH/gorbswap/pkg/scenario"
)

// printPlan writes each batch the way an explorer shows instructions: program, flagged
// accounts and base58 data.
func printPlan(w io.Writer, plan *scenario.Plan) error {
	if len(plan.Batches) == 0 {
		_, err := fmt.Fprintf(w, "%s: read-only, nothing to submit\n", plan.Step)
		return err
	}
	for _, b := range plan.Batches {
		fmt.Fprintf(w, "batch %s (%d instructions)\n", b.Name, len(b.Instructions))
		for _, k := range b.Signers {
			fmt.Fprintf(w, "  new signer %s\n", k.PublicKey())
		}
		for i, inst := range b.Instructions {
			data, err := inst.Data()
			if err != nil {
				return fmt.Errorf("%s instruction %d: %w", b.Name, i, err)
			}
			fmt.Fprintf(w, "  #%d program %s\n", i, inst.ProgramID())
			for j, m := range inst.Accounts() {
				fmt.Fprintf(w, "    %2d %s %s\n", j, flags(m.IsWritable, m.IsSigner), m.PublicKey)
			}
			fmt.Fprintf(w, "    data %s\n", base58.Encode(data))
		}
	}
	return nil
}

func flags(writable, signer bool) string {
	out := []byte("--")
	if writable {
		out[0] = 'w'
	}
	if signer {
		out[1] = 's'
	}
	return string(out)
}
