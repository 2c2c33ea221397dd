package probe

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/stockwatch/stockwatch/internal/models"
)

const (
	defaultGlobalBaseURL = "https://prod-global-api.popmart.com"
	productDetailsPath   = "/shop/v1/shop/productDetails"

	// Request-signing constants lifted from the storefront web client.
	signSalt  = "W_ak^moHpMla"
	clientKey = "rmdxjisjk7gwykcix"
)

// globalDetails is the slice of the product-details response we care about.
type globalDetails struct {
	Data *struct {
		Title string `json:"title"`
		Skus  []struct {
			Title string `json:"title"`
			Stock struct {
				OnlineStock int `json:"onlineStock"`
			} `json:"stock"`
		} `json:"skus"`
	} `json:"data"`
}

// extractSpuID pulls the numeric product id out of either storefront URL
// shape: the legacy "?spuId=938" query or the "/products/643/Name" path.
func extractSpuID(link string) (string, bool) {
	if i := strings.Index(link, "spuId="); i >= 0 {
		id := link[i+len("spuId="):]
		if j := strings.IndexByte(id, '&'); j >= 0 {
			id = id[:j]
		}
		if id != "" {
			return id, true
		}
		return "", false
	}
	if i := strings.Index(link, "/products/"); i >= 0 {
		rest := link[i+len("/products/"):]
		id := rest
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			id = rest[:j]
		}
		if _, err := strconv.Atoi(id); err == nil && id != "" {
			return id, true
		}
	}
	return "", false
}

// sign computes the "s" request parameter: the md5 of the compact JSON of
// the (key-sorted) parameters, the salt, and the unix timestamp.
// Empty-valued parameters are dropped for GET requests.
func sign(params map[string]string, timestamp string) (string, error) {
	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if v != "" {
			filtered[k] = v
		}
	}
	// json.Marshal emits map keys in sorted order, matching the web
	// client's recursive key sort.
	blob, err := json.Marshal(filtered)
	if err != nil {
		return "", err
	}
	sum := md5.Sum([]byte(string(blob) + signSalt + timestamp))
	return fmt.Sprintf("%x", sum), nil
}

// xSignHeader computes the x-sign header: md5("{ts},{clientKey}") + ",{ts}".
func xSignHeader(timestamp string) string {
	sum := md5.Sum([]byte(timestamp + "," + clientKey))
	return fmt.Sprintf("%x,%s", sum, timestamp)
}

// checkGlobal reports availability for a product on the global store. The
// product is in stock when any SKU has online stock.
func (p *HTTPProbe) checkGlobal(ctx context.Context, link string) (bool, error) {
	spuID, ok := extractSpuID(link)
	if !ok {
		return false, fmt.Errorf("%w: cannot extract product id from %q", models.ErrParse, link)
	}

	timestamp := strconv.FormatInt(p.now().Unix(), 10)
	params := map[string]string{"spuId": spuID}
	signature, err := sign(params, timestamp)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrProbe, err)
	}

	q := url.Values{}
	q.Set("spuId", spuID)
	q.Set("s", signature)
	q.Set("t", timestamp)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		p.globalBaseURL+productDetailsPath+"?"+q.Encode(), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrProbe, err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("clientkey", clientKey)
	req.Header.Set("country", "AU")
	req.Header.Set("language", "en")
	req.Header.Set("x-client-country", "AU")
	req.Header.Set("x-client-namespace", "eurasian")
	req.Header.Set("x-device-os-type", "web")
	req.Header.Set("x-project-id", "eude")
	req.Header.Set("x-sign", xSignHeader(timestamp))
	req.Header.Set("tz", "Australia/Sydney")

	resp, err := p.client.Do(req)
	if err != nil {
		return false, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: unexpected status %d", models.ErrProbe, resp.StatusCode)
	}

	var details globalDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	if details.Data == nil {
		return false, fmt.Errorf("%w: response has no product data", models.ErrParse)
	}

	for _, sku := range details.Data.Skus {
		if sku.Stock.OnlineStock > 0 {
			return true, nil
		}
	}
	return false, nil
}
