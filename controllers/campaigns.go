package controllers

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/etiditalex/CMFagency-sub002/models"
	"github.com/etiditalex/CMFagency-sub002/utils"
)

// CampaignController serves the public catalogue reads the checkout pages
// are built on.
type CampaignController struct {
	DB *gorm.DB
}

func NewCampaignController(db *gorm.DB) *CampaignController {
	return &CampaignController{DB: db}
}

// Get returns one active campaign by slug.
func (c *CampaignController) Get(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var campaign models.Campaign
	err := c.DB.Where("slug = ? AND active = ?", slug, true).First(&campaign).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Campaign not found"})
		return
	}
	if err != nil {
		log.Printf("[campaigns] get %s: %v", slug, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to load campaign"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Campaign", Data: campaign})
}

// Contestants lists a vote campaign's contestants with their tallies.
func (c *CampaignController) Contestants(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]

	var campaign models.Campaign
	err := c.DB.Where("slug = ? AND active = ?", slug, true).First(&campaign).Error
	if err == gorm.ErrRecordNotFound {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Campaign not found"})
		return
	}
	if err != nil {
		log.Printf("[campaigns] get %s: %v", slug, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to load campaign"})
		return
	}
	if campaign.Type != models.TypeVote {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Campaign has no contestants"})
		return
	}

	type contestantWithVotes struct {
		models.Contestant
		Votes int64 `json:"votes"`
	}
	var rows []contestantWithVotes
	err = c.DB.Model(&models.Contestant{}).
		Select("contestants.*, COALESCE(SUM(votes.vote_count), 0) AS votes").
		Joins("LEFT JOIN votes ON votes.contestant_id = contestants.id").
		Where("contestants.campaign_id = ?", campaign.ID).
		Group("contestants.id").
		Order("votes DESC").
		Find(&rows).Error
	if err != nil {
		log.Printf("[campaigns] contestants %s: %v", slug, err)
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Failed to load contestants"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Contestants", Data: rows})
}
