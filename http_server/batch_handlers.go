package http_server

import (
	"errors"
	"net/http"

	"github.com/danthegoodman1/ekdb/archive"
	"github.com/danthegoodman1/ekdb/config"
	"github.com/danthegoodman1/ekdb/ekapi"
	"github.com/danthegoodman1/ekdb/store"
	"github.com/danthegoodman1/ekdb/utils"
)

type BatchQuery struct {
	Table        string `param:"table" validate:"required"`
	PKStartValue int64  `query:"pkStartValue" validate:"min=0"`
	PKName       string `query:"pkName" validate:"required,alpha"`
	PerPage      int    `query:"perPage" validate:"min=1,max=100"`
}

// GetBatch answers like the upstream /tables/:table/batch endpoint.
func (s *HTTPServer) GetBatch(c *CustomContext) error {
	q := BatchQuery{PKStartValue: 1, PerPage: config.MaxPerPage}
	if err := ValidateRequest(c, &q); err != nil {
		return err
	}

	ctx := c.Request().Context()
	cols, err := s.store.Columns(ctx, q.Table)
	if errors.Is(err, store.ErrNoSuchTable) {
		return c.String(http.StatusNotFound, "no such table")
	}
	if err != nil {
		return c.InternalError(err, "error getting columns")
	}
	if !utils.ContainsString(cols, q.PKName) {
		return c.String(http.StatusBadRequest, "pkName is not a column of "+q.Table)
	}

	b, err := s.store.ReadBatch(ctx, q.Table, q.PKName, q.PKStartValue, q.PerPage)
	if err != nil {
		return c.InternalError(err, "error reading batch")
	}

	return c.JSON(http.StatusOK, ekapi.Page{
		ColumnNames: b.Columns,
		RowData:     b.Rows,
		HasMore:     b.HasMore,
		PKLastValue: b.LastPK,
	})
}

func (s *HTTPServer) ListTables(c *CustomContext) error {
	tables, err := s.store.ListTables(c.Request().Context())
	if err != nil {
		return c.InternalError(err, "error listing tables")
	}
	return c.JSON(http.StatusOK, utils.ArrayOrEmpty(tables))
}

// GetMetadata returns the same document the archiver uploads, computed live.
func (s *HTTPServer) GetMetadata(c *CustomContext) error {
	md, err := archive.BuildMetadata(c.Request().Context(), s.store, s.store.Path())
	if err != nil {
		return c.InternalError(err, "error building metadata")
	}
	return c.JSON(http.StatusOK, md)
}
