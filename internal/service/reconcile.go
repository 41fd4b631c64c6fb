package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"kasirhub/backend/internal/domain"
	"kasirhub/backend/internal/imaging"
	"kasirhub/backend/internal/store"
)

const maxImportRows = 500

type importLine struct {
	rowNum            int
	sku               string
	barcode           string
	name              string
	category          string
	costPriceCents    int64
	sellingPriceCents int64
	stockQty          int
	lowStockThreshold int
	taxable           bool
	imageURL          string
}

// ReconcileImport applies a bulk catalog upload row by row. A bad row is
// reported and skipped, never aborting the rest of the batch; lookups by
// SKU, barcode, and name are done in bulk up front so the per-row work
// does not touch the database for matching.
func (s *Service) ReconcileImport(ctx context.Context, req domain.ImportRequest) (domain.ImportSummary, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.ImportSummary{}, err
	}

	if len(req.Rows) == 0 {
		return domain.ImportSummary{}, fmt.Errorf("%w: no rows to import", ErrValidation)
	}
	if len(req.Rows) > maxImportRows {
		return domain.ImportSummary{}, fmt.Errorf("%w: at most %d rows per import", ErrValidation, maxImportRows)
	}

	summary := domain.ImportSummary{Errors: []domain.ImportRowError{}}
	lines := make([]importLine, 0, len(req.Rows))
	for i, raw := range req.Rows {
		line, err := parseImportRow(i+1, raw)
		if err != nil {
			summary.FailedCount++
			summary.Errors = append(summary.Errors, domain.ImportRowError{
				Row: i + 1, Error: err.Error(), SKU: strings.TrimSpace(raw.SKU), Name: strings.TrimSpace(raw.Name),
			})
			continue
		}
		lines = append(lines, line)
	}

	// Duplicate SKUs or names inside the batch reject the whole upload:
	// with only some of the colliding rows applied there is no way to
	// tell which one the operator meant.
	if dups := batchDuplicates(lines); len(dups) > 0 {
		return domain.ImportSummary{}, fmt.Errorf("%w: duplicates within batch: %s", ErrValidation, strings.Join(dups, "; "))
	}

	var skus, barcodes, names, categoryNames []string
	for _, line := range lines {
		skus = append(skus, line.sku)
		names = append(names, line.name)
		if line.barcode != "" {
			barcodes = append(barcodes, line.barcode)
		}
		if line.category != "" {
			categoryNames = append(categoryNames, line.category)
		}
	}

	bySKU, err := s.repo.GetProductsBySKUs(ctx, actor.TenantID, skus)
	if err != nil {
		return domain.ImportSummary{}, err
	}
	byBarcode, err := s.repo.GetProductsByBarcodes(ctx, barcodes)
	if err != nil {
		return domain.ImportSummary{}, err
	}
	byName, err := s.repo.GetProductsByNames(ctx, actor.TenantID, names)
	if err != nil {
		return domain.ImportSummary{}, err
	}
	categories, err := s.repo.GetCategoriesByNames(ctx, actor.TenantID, categoryNames)
	if err != nil {
		return domain.ImportSummary{}, err
	}

	var rehostReqs []imaging.Request
	for _, line := range lines {
		productID, err := s.reconcileRow(ctx, actor, line, bySKU, byBarcode, byName, categories)
		if err != nil {
			summary.FailedCount++
			summary.Errors = append(summary.Errors, domain.ImportRowError{
				Row: line.rowNum, Error: err.Error(), SKU: line.sku, Name: line.name,
			})
			continue
		}
		summary.SuccessCount++
		if line.imageURL != "" {
			rehostReqs = append(rehostReqs, imaging.Request{ProductID: productID, SourceURL: line.imageURL})
		}
	}

	// Images are best effort: a dead URL or a slow host must not undo a
	// row that already imported cleanly.
	if s.images != nil && len(rehostReqs) > 0 {
		for _, result := range s.images.RehostAll(ctx, rehostReqs) {
			if result.Err != nil {
				log.Printf("[service] WARN: image rehost failed product=%s url=%s: %v", result.ProductID, result.SourceURL, result.Err)
				continue
			}
			if err := s.repo.SetProductImageURL(ctx, actor.TenantID, result.ProductID, result.HostedURL); err != nil {
				log.Printf("[service] WARN: failed to save image url product=%s: %v", result.ProductID, err)
			}
		}
	}

	s.logAudit(ctx, "catalog_import", "import", "", fmt.Sprintf("rows=%d,success=%d,failed=%d", len(req.Rows), summary.SuccessCount, summary.FailedCount))
	return summary, nil
}

// reconcileRow decides merge, reactivate, or create for one sanitized row
// and applies it. It returns the affected product's ID.
func (s *Service) reconcileRow(
	ctx context.Context,
	actor domain.Actor,
	line importLine,
	bySKU map[string]domain.Product,
	byBarcode map[string]domain.Product,
	byName map[string]domain.Product,
	categories map[string]domain.ProductCategory,
) (string, error) {
	if line.category != "" {
		catKey := store.NormalizeName(line.category)
		if _, ok := categories[catKey]; !ok {
			if err := s.ensureCategory(ctx, actor.TenantID, line.category); err != nil {
				return "", fmt.Errorf("create category: %w", err)
			}
			categories[catKey] = domain.ProductCategory{TenantID: actor.TenantID, Name: line.category, Active: true}
		}
	}

	skuKey := store.NormalizeSKU(line.sku)
	nameKey := store.NormalizeName(line.name)

	existing, matched := bySKU[skuKey]
	if !matched {
		if other, ok := byName[nameKey]; ok && store.NormalizeSKU(other.SKU) != skuKey {
			return "", fmt.Errorf("name already used by sku %s", other.SKU)
		}
		if line.barcode != "" {
			if _, ok := byBarcode[line.barcode]; ok {
				return "", errors.New("barcode already registered")
			}
		}

		created, err := s.repo.CreateProduct(ctx, domain.Product{
			TenantID:          actor.TenantID,
			SKU:               store.NormalizeSKU(line.sku),
			Barcode:           line.barcode,
			Name:              line.name,
			Category:          line.category,
			CostPriceCents:    line.costPriceCents,
			SellingPriceCents: line.sellingPriceCents,
			LowStockThreshold: line.lowStockThreshold,
			Taxable:           line.taxable,
			Active:            true,
			ImageURL:          line.imageURL,
		})
		if err != nil {
			return "", err
		}
		if line.stockQty > 0 {
			if _, err := s.repo.ApplyStockDelta(ctx, domain.StockDelta{
				TenantID:   actor.TenantID,
				ProductID:  created.ID,
				Delta:      line.stockQty,
				Type:       domain.MovementRefill,
				OperatorID: actor.ID,
				Reason:     "import",
			}); err != nil {
				return "", err
			}
		}

		// Later rows in the same batch must see this product too.
		bySKU[skuKey] = *created
		byName[nameKey] = *created
		if created.Barcode != "" {
			byBarcode[created.Barcode] = *created
		}
		return created.ID, nil
	}

	if other, ok := byName[nameKey]; ok && other.ID != existing.ID {
		return "", fmt.Errorf("name already used by sku %s", other.SKU)
	}
	if line.barcode != "" {
		if other, ok := byBarcode[line.barcode]; ok && other.ID != existing.ID {
			return "", errors.New("barcode already registered")
		}
	}

	reactivating := !existing.Active
	updated := existing
	updated.Barcode = line.barcode
	updated.Name = line.name
	updated.Category = line.category
	updated.CostPriceCents = line.costPriceCents
	updated.SellingPriceCents = line.sellingPriceCents
	updated.LowStockThreshold = line.lowStockThreshold
	updated.Taxable = line.taxable
	updated.Active = true
	if line.imageURL != "" {
		// The source URL lands as-is; the re-host pass swaps in the
		// hosted copy when the download succeeds.
		updated.ImageURL = line.imageURL
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return "", err
	}

	if reactivating {
		// A reactivated product's old stock figure is stale; the import
		// row is the fresh count, so reset rather than add.
		if delta := line.stockQty - saved.StockLevel; delta != 0 {
			if _, err := s.repo.ApplyStockDelta(ctx, domain.StockDelta{
				TenantID:   actor.TenantID,
				ProductID:  saved.ID,
				Delta:      delta,
				Type:       domain.MovementAdjustment,
				OperatorID: actor.ID,
				Reason:     "import reactivate",
			}); err != nil {
				return "", err
			}
		}
	} else if line.stockQty > 0 {
		if _, err := s.repo.ApplyStockDelta(ctx, domain.StockDelta{
			TenantID:   actor.TenantID,
			ProductID:  saved.ID,
			Delta:      line.stockQty,
			Type:       domain.MovementRefill,
			OperatorID: actor.ID,
			Reason:     "import",
		}); err != nil {
			return "", err
		}
	}

	bySKU[skuKey] = *saved
	byName[nameKey] = *saved
	if saved.Barcode != "" {
		byBarcode[saved.Barcode] = *saved
	}
	return saved.ID, nil
}

// batchDuplicates lists every normalized SKU and name that appears on more
// than one row, with all the rows it appears on.
func batchDuplicates(lines []importLine) []string {
	type group struct {
		keys []string
		rows map[string][]int
	}
	collect := func(keyOf func(importLine) string) group {
		g := group{rows: make(map[string][]int)}
		for _, line := range lines {
			key := keyOf(line)
			if len(g.rows[key]) == 0 {
				g.keys = append(g.keys, key)
			}
			g.rows[key] = append(g.rows[key], line.rowNum)
		}
		return g
	}

	var dups []string
	describe := func(kind string, g group) {
		for _, key := range g.keys {
			rows := g.rows[key]
			if len(rows) < 2 {
				continue
			}
			parts := make([]string, len(rows))
			for i, r := range rows {
				parts[i] = strconv.Itoa(r)
			}
			dups = append(dups, fmt.Sprintf("%s %q at rows %s", kind, key, strings.Join(parts, ", ")))
		}
	}
	describe("sku", collect(func(l importLine) string { return store.NormalizeSKU(l.sku) }))
	describe("name", collect(func(l importLine) string { return store.NormalizeName(l.name) }))
	return dups
}

func parseImportRow(rowNum int, raw domain.ImportRow) (importLine, error) {
	line := importLine{
		rowNum:   rowNum,
		sku:      strings.TrimSpace(raw.SKU),
		barcode:  strings.TrimSpace(raw.Barcode),
		name:     strings.TrimSpace(raw.Name),
		category: strings.TrimSpace(raw.Category),
		taxable:  raw.Taxable,
		imageURL: strings.TrimSpace(raw.ImageURL),
	}
	if line.sku == "" {
		return importLine{}, errors.New("missing sku")
	}
	if line.name == "" {
		return importLine{}, errors.New("missing name")
	}

	price, err := parseMoneyCents(raw.SellingPrice)
	if err != nil || price < 1 {
		return importLine{}, fmt.Errorf("invalid selling_price %q", raw.SellingPrice)
	}
	line.sellingPriceCents = price

	if strings.TrimSpace(raw.CostPrice) != "" {
		cost, err := parseMoneyCents(raw.CostPrice)
		if err != nil || cost < 0 {
			return importLine{}, fmt.Errorf("invalid cost_price %q", raw.CostPrice)
		}
		line.costPriceCents = cost
	}

	qty, err := parseIntField(raw.StockQty)
	if err != nil || qty < 0 {
		return importLine{}, fmt.Errorf("invalid stock_qty %q", raw.StockQty)
	}
	line.stockQty = qty

	// Missing threshold falls back to a sensible reorder point.
	line.lowStockThreshold = 10
	if strings.TrimSpace(raw.LowStockThreshold) != "" {
		threshold, err := parseIntField(raw.LowStockThreshold)
		if err != nil || threshold < 0 {
			return importLine{}, fmt.Errorf("invalid low_stock_threshold %q", raw.LowStockThreshold)
		}
		line.lowStockThreshold = threshold
	}

	return line, nil
}

// parseMoneyCents accepts the money formats that show up in spreadsheet
// exports: "15000", "15,000", "15000.50", "Rp 15.000", "$12.99". The
// rightmost separator followed by exactly two digits is treated as the
// decimal point; every other separator is a thousands mark.
func parseMoneyCents(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "Rp")
	s = strings.TrimPrefix(s, "rp")
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, errors.New("empty amount")
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole := s
	var frac string
	if i := strings.LastIndexAny(s, ".,"); i >= 0 && len(s)-i-1 == 2 {
		whole, frac = s[:i], s[i+1:]
	}
	whole = strings.ReplaceAll(whole, ".", "")
	whole = strings.ReplaceAll(whole, ",", "")
	if whole == "" {
		whole = "0"
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	cents := units * 100
	if frac != "" {
		f, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, err
		}
		cents += f
	}
	if negative {
		cents = -cents
	}
	return cents, nil
}

func parseIntField(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	return strconv.Atoi(s)
}
