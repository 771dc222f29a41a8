package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dynamokv/internal/errs"
	"dynamokv/internal/partition"
	"dynamokv/internal/storage"
)

// RegisterStorage mounts the peer-facing storage replication callbacks
// (the storage endpoint contract served over HTTP) on group, answering
// for the local engine only: a peer never asks this node about a replica
// it doesn't itself hold.
func RegisterStorage(group *gin.RouterGroup, local storage.Endpoint) {
	group.GET("/:partition/:node/:key", storageGet(local))
	group.PUT("/:partition/:node/:key", storagePut(local))
	group.GET("/:partition/:node/:key/has", storageHasKey(local))
	group.DELETE("/:partition/:node/:key", storageDelete(local))
}

func parsePartition(c *gin.Context) (partition.ID, error) {
	v, err := strconv.ParseUint(c.Param("partition"), 10, 32)
	if err != nil {
		return 0, err
	}
	return partition.ID(v), nil
}

func storageGet(local storage.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parsePartition(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		vv, err := local.Get(c.Request.Context(), p, c.Param("node"), c.Param("key"))
		if err != nil {
			respondStorageErr(c, err)
			return
		}
		c.JSON(http.StatusOK, wireValue{Clock: vv.Clock, Value: vv.Value})
	}
}

func storagePut(local storage.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parsePartition(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var body wireValue
		if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := local.Put(c.Request.Context(), p, c.Param("node"), c.Param("key"), body.Clock, body.Value); err != nil {
			respondStorageErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func storageHasKey(local storage.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parsePartition(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		present, err := local.HasKey(c.Request.Context(), p, c.Param("node"), c.Param("key"))
		if err != nil {
			respondStorageErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"present": present})
	}
}

func storageDelete(local storage.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parsePartition(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := local.Delete(c.Request.Context(), p, c.Param("node"), c.Param("key")); err != nil {
			respondStorageErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func respondStorageErr(c *gin.Context, err error) {
	if errs.KindOf(err) == errs.KindNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
