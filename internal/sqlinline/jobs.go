package sqlinline

const QJobsCreateTable = `--sql 3af001aa-6f6c-4384-8cec-8601be7297e6
create table if not exists staging_jobs (
    id text primary key,
    status text not null,
    source_ref text not null,
    result_ref text not null default '',
    error_detail text not null default '',
    requester text not null default '',
    created_at timestamptz not null,
    started_at timestamptz,
    completed_at timestamptz,
    version bigint not null default 0
);
create index if not exists staging_jobs_status_created_idx on staging_jobs (status, created_at);
`

const QJobsInsert = `--sql 3fab8357-5140-4360-bc87-683851c478af
insert into staging_jobs (id, status, source_ref, result_ref, error_detail, requester, created_at, started_at, completed_at, version)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0)
on conflict (id) do nothing;
`

const QJobsGet = `--sql 237d64e0-4d1d-400f-87e8-d18689c134d2
select id, status, source_ref, result_ref, error_detail, requester, created_at, started_at, completed_at, version
from staging_jobs
where id = $1;
`

const QJobsUpdateVersioned = `--sql 9d719c45-68a5-4b80-b971-9f626e88326a
update staging_jobs
set status = $3,
    result_ref = $4,
    error_detail = $5,
    started_at = $6,
    completed_at = $7,
    version = version + 1
where id = $1 and version = $2;
`

const QJobsVersion = `--sql 9a23c816-8775-4a97-9dad-efacad18a336
select version from staging_jobs where id = $1;
`

const QJobsListByState = `--sql a0cf69de-ec20-4bf9-8db6-5d932359b05a
select id, status, source_ref, result_ref, error_detail, requester, created_at, started_at, completed_at, version
from staging_jobs
where status = $1
order by created_at asc
limit $2;
`

const QJobsDelete = `--sql 2c0090d3-bfc4-44e3-8ceb-3b02dd98adae
delete from staging_jobs where id = $1;
`
