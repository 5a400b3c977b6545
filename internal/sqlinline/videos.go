package sqlinline

const QInsertVideoJob = `--sql c64c96de-6ba5-4b47-94f9-d811423d0235
insert into video_jobs (
    id, user_id, prompt, sora_job_id, status, error_message, seconds, size,
    content_variant, content_token, content_token_expires_at, content_ready_at,
    created_at, updated_at
) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

const QSelectVideoJobByID = `--sql 3f6b1a2d-8c4e-4d7f-9b0a-1e2d3c4b5a69
select id, user_id, prompt, sora_job_id, status, error_message, seconds, size,
       content_variant, content_token, content_token_expires_at, content_ready_at,
       created_at, updated_at
from video_jobs
where id = ?;
`

// QListVideoJobs takes (status, status, user_id, user_id, limit); empty
// strings disable the status/user filters and a non-positive limit lists all.
const QListVideoJobs = `--sql 7a9d2e4f-1b3c-4e5d-8f6a-2b4c6d8e0f13
select id, user_id, prompt, sora_job_id, status, error_message, seconds, size,
       content_variant, content_token, content_token_expires_at, content_ready_at,
       created_at, updated_at
from video_jobs
where (? = '' or status = ?)
  and (? = '' or user_id = ?)
order by created_at desc
limit ?;
`

const QListActiveVideoJobs = `--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db
select id, user_id, prompt, sora_job_id, status, error_message, seconds, size,
       content_variant, content_token, content_token_expires_at, content_ready_at,
       created_at, updated_at
from video_jobs
where status in (?, ?);
`

// QUpdateVideoJobState only touches rows that are still active, so a terminal
// job can never be rewritten.
const QUpdateVideoJobState = `--sql 9d1e7c3b-5a2f-4b8e-a6d4-0c9f8e7d6b52
update video_jobs
set status = ?,
    error_message = ?,
    content_variant = ?,
    content_token = ?,
    content_token_expires_at = ?,
    content_ready_at = ?,
    updated_at = ?
where id = ?
  and status in (?, ?);
`

const QCountVideoJobsByStatus = `--sql e2c4a6b8-0d1f-4a3c-9e5b-7d9f1b3d5f70
select status, count(*)
from video_jobs
group by status
order by status;
`
