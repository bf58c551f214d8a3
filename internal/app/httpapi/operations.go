package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/mintline/edition_layer/internal/app/domain/collection"
	"github.com/mintline/edition_layer/internal/app/domain/edition"
	"github.com/mintline/edition_layer/internal/app/services/allocation"
	apperrors "github.com/mintline/edition_layer/internal/errors"
	"github.com/mintline/edition_layer/internal/httputil"
)

const maxOperationBody = 1 << 20

// Operation envelopes. Each carries its "op" tag so strict decoding accepts it.
type (
	editionOp struct {
		Op           string `json:"op"`
		CollectionID string `json:"collection_id"`
		SubID        string `json:"sub_id"`
	}
	consignOp struct {
		editionOp
		Price string `json:"price"`
	}
	transferOp struct {
		editionOp
		To     string         `json:"to"`
		Status edition.Status `json:"status,omitempty"`
	}
	publishOp struct {
		Op           string   `json:"op"`
		CollectionID string   `json:"collection_id"`
		SubIDs       []string `json:"sub_ids,omitempty"`
		Price        string   `json:"price,omitempty"`
	}
	boxOp struct {
		Op           string `json:"op"`
		CollectionID string `json:"collection_id"`
	}
	openOp struct {
		Op         string `json:"op"`
		InstanceID string `json:"instance_id"`
	}
	airdropOp struct {
		Op           string   `json:"op"`
		CollectionID string   `json:"collection_id"`
		Recipients   []string `json:"recipients"`
		SubIDs       []string `json:"sub_ids,omitempty"`
	}
	synthesizeOp struct {
		Op           string `json:"op"`
		CollectionID string `json:"collection_id"`
		Count        int    `json:"count"`
		Owner        string `json:"owner,omitempty"`
		Price        string `json:"price,omitempty"`
	}
	statusOp struct {
		Op           string            `json:"op"`
		CollectionID string            `json:"collection_id"`
		Status       collection.Status `json:"status"`
	}
)

func decodeOp(body []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("invalid operation body: " + err.Error())
	}
	return nil
}

// operations dispatches a tagged envelope {"op": "...", ...} to the matching
// operation and answers exactly as the dedicated route would.
func (h *handler) operations(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOperationBody))
	if err != nil {
		h.fail(w, r, apperrors.Validation("request body too large"))
		return
	}
	if !gjson.ValidBytes(body) {
		h.fail(w, r, apperrors.Validation("request body is not valid JSON"))
		return
	}
	op := gjson.GetBytes(body, "op")
	if op.Type != gjson.String || op.String() == "" {
		h.fail(w, r, apperrors.Validation("op is required"))
		return
	}

	switch op.String() {
	case "purchase":
		var in editionOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writePurchase(w, r, allocation.PurchaseRequest{CollectionID: in.CollectionID, SubID: in.SubID})
	case "consign":
		var in consignOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeConsign(w, r, allocation.ConsignRequest{CollectionID: in.CollectionID, SubID: in.SubID, Price: in.Price})
	case "transfer":
		var in transferOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeTransfer(w, r, allocation.TransferRequest{CollectionID: in.CollectionID, SubID: in.SubID, To: in.To, Status: in.Status})
	case "publish":
		var in publishOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writePublish(w, r, allocation.PublishRequest{CollectionID: in.CollectionID, SubIDs: in.SubIDs, Price: in.Price})
	case "purchase_box":
		var in boxOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writePurchaseBox(w, r, allocation.PurchaseBoxRequest{CollectionID: in.CollectionID})
	case "open_box":
		var in openOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeOpenBox(w, r, allocation.OpenBoxRequest{InstanceID: in.InstanceID})
	case "airdrop":
		var in airdropOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeAirdrop(w, r, allocation.AirdropRequest{CollectionID: in.CollectionID, Recipients: in.Recipients, SubIDs: in.SubIDs})
	case "synthesize":
		var in synthesizeOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeSynthesize(w, r, allocation.SynthesizeRequest{CollectionID: in.CollectionID, Count: in.Count, Owner: in.Owner, Price: in.Price})
	case "set_status":
		var in statusOp
		if err := decodeOp(body, &in); err != nil {
			h.fail(w, r, err)
			return
		}
		c, err := h.svc.SetCollectionStatus(r.Context(), callerFrom(r), allocation.SetStatusRequest{CollectionID: in.CollectionID, Status: in.Status})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, newCollectionView(c))
	default:
		h.fail(w, r, apperrors.Validation("unknown op "+op.String()).WithDetails("op", op.String()))
	}
}
