// Package pagination provides pull-driven walks over paginated upstream result sets.
//
// The enrichment API pages its results either by offset (with or without a
// reported total) or by opaque cursor tokens. A Driver walks an offset
// paginated set and yields one projected row per call to Next; nothing is
// fetched until the consumer pulls, so a slow consumer throttles the upstream
// query rate directly.
//
// Example usage:
//
//	fetcher := pagination.FetchFunc[*Node](fetchNodes)
//	driver := pagination.NewDriver(fetcher, projectNode, pagination.Counted{}, pagination.DefaultConfig("consensus"))
//	for {
//		row, err := driver.Next(ctx)
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		if err != nil {
//			return err
//		}
//		emit(row)
//	}
//
// Termination is decided by a Policy:
//   - ShortPage stops on an empty page, a short page, or the MaxTotal ceiling
//   - Counted stops on an empty page or once the first page's total is reached
//
// Policies are pure functions of State, so the cursor never mutates behind the
// caller's back and each step can be tested on its own.
//
// Keyset walks cursor-token paginated sets (pageInfo.endCursor/hasNextPage).
package pagination
