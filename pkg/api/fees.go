package api

import (
	"math"
	"math/bits"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chainfees/fee-indexer/pkg/types"
)

type feesQuery struct {
	Address string `form:"address" validate:"required,evmaddr"`
	Page    uint64 `form:"page" validate:"required,min=1"`
}

type feeItem struct {
	Token         string `json:"token"`
	Integrator    string `json:"integrator"`
	IntegratorFee string `json:"integratorFee"`
	LifiFee       string `json:"lifiFee"`
}

type feesResponse struct {
	Success bool      `json:"success"`
	Data    []feeItem `json:"data"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (s *Server) getFees(c *gin.Context) {
	var q feesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}
	if err := s.validate.Struct(q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	hi, offset := bits.Mul64(q.Page-1, s.cfg.PageSize)
	if hi != 0 || offset > math.MaxInt64 {
		// Past any page the store could hold.
		c.JSON(http.StatusOK, feesResponse{Success: true, Data: []feeItem{}})
		return
	}

	integrator := types.NormalizeAddress(q.Address)
	events, err := s.store.QueryByIntegrator(c.Request.Context(), integrator, offset, s.cfg.PageSize)
	if err != nil {
		s.sugar.Errorw("failed to query fees",
			"integrator", integrator,
			"page", q.Page,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, failureResponse{Success: false, Error: "Please retry later"})
		return
	}

	data := make([]feeItem, 0, len(events))
	for _, ev := range events {
		data = append(data, feeItem{
			Token:         ev.Token,
			Integrator:    ev.Integrator,
			IntegratorFee: ev.IntegratorFee,
			LifiFee:       ev.LifiFee,
		})
	}
	c.JSON(http.StatusOK, feesResponse{Success: true, Data: data})
}
